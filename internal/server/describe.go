package server

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
)

// describe 把解析结果转换为可 JSON 输出的摘要，二进制内容只给出长度。
func describe(out any) fiber.Map {
	switch v := out.(type) {
	case nil:
		return fiber.Map{"type": "none"}
	case string:
		return fiber.Map{"type": "text", "size": len(v), "content": v}
	case []byte:
		return fiber.Map{"type": "binary", "size": len(v)}
	case map[string]any, []any:
		return fiber.Map{"type": "json", "content": v}
	default:
		return fiber.Map{"type": fmt.Sprintf("%T", v), "content": v}
	}
}
