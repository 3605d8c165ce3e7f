package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/any-hub/any-asset/internal/config"
	"github.com/any-hub/any-asset/internal/logging"
	"github.com/any-hub/any-asset/internal/registry"
	"github.com/any-hub/any-asset/internal/server"
	"github.com/any-hub/any-asset/internal/server/routes"
	"github.com/any-hub/any-asset/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath    string
	checkOnly     bool
	showVersion   bool
	fetchURL      string
	bundle        string
	bundleVersion string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["profiles"] = len(cfg.EffectiveProfiles())
		fields["remote_bundles"] = len(cfg.Global.RemoteBundles)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 缓存索引 → 调度器 → 管线与分派表 → 一次性任务或 Fiber server。
	rt, err := newRuntime(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化运行时失败: %v\n", err)
		return 1
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.WithError(err).Warn("shutdown_failed")
		}
	}()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["cache_root"] = cfg.Global.CacheRoot
	fields["listen_port"] = cfg.Global.ListenPort
	fields["profiles"] = len(cfg.EffectiveProfiles())
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rt.Start(ctx)

	switch {
	case opts.bundle != "":
		return runBundle(ctx, rt, opts)
	case opts.fetchURL != "":
		return runFetch(ctx, rt, opts)
	}

	if err := startHTTPServer(ctx, cfg, rt, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("any-asset", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag    string
		checkOnly     bool
		showVer       bool
		fetchURL      string
		bundle        string
		bundleVersion string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 ANY_ASSET_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.StringVar(&fetchURL, "fetch", "", "获取单个资源并输出结果后退出")
	fs.StringVar(&bundle, "bundle", "", "加载 bundle（名称或 URL）并输出清单后退出")
	fs.StringVar(&bundleVersion, "bundle-version", "", "bundle 清单版本号")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("ANY_ASSET_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:    path,
		checkOnly:     checkOnly,
		showVersion:   showVer,
		fetchURL:      fetchURL,
		bundle:        bundle,
		bundleVersion: bundleVersion,
	}, nil
}

func runFetch(ctx context.Context, rt *assetRuntime, opts cliOptions) int {
	out, err := rt.pipeline.Load(ctx, opts.fetchURL, registry.Options{})
	if err != nil {
		fmt.Fprintf(stdErr, "获取资源失败: %v\n", err)
		return 1
	}
	return printResult(out)
}

func runBundle(ctx context.Context, rt *assetRuntime, opts cliOptions) int {
	manifest, err := rt.pipeline.LoadBundle(ctx, opts.bundle, registry.Options{Version: opts.bundleVersion})
	if err != nil {
		fmt.Fprintf(stdErr, "加载 bundle 失败: %v\n", err)
		return 1
	}
	return printResult(manifest)
}

func printResult(out any) int {
	switch v := out.(type) {
	case string:
		fmt.Fprintln(stdOut, v)
		return 0
	case []byte:
		fmt.Fprintf(stdOut, "%d bytes\n", len(v))
		return 0
	}
	enc := json.NewEncoder(stdOut)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stdErr, "输出结果失败: %v\n", err)
		return 1
	}
	return 0
}

func startHTTPServer(ctx context.Context, cfg *config.Config, rt *assetRuntime, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:   logger,
		Pipeline: rt.pipeline,
		Gatherer: rt.metricsRegistry,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnosticsRoutes(app, rt.pipeline)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return serveUntilDone(ctx, func() error {
		return app.Listen(fmt.Sprintf(":%d", port))
	}, app.Shutdown)
}

// serveUntilDone 阻塞执行 listen；ctx 取消时调用 shutdown。listen 提前失败时
// 监听协程随之退出，返回前保证该协程已结束。
func serveUntilDone(ctx context.Context, listen, shutdown func() error) error {
	stop, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownErr := make(chan error, 1)
	go func() {
		<-stop.Done()
		if ctx.Err() != nil {
			shutdownErr <- shutdown()
			return
		}
		shutdownErr <- nil
	}()

	err := listen()
	cancel()
	return multierr.Append(err, <-shutdownErr)
}

// printVersion 输出注入的版本 + 提交信息。
func printVersion() {
	fmt.Fprintln(stdOut, version.Full())
}
