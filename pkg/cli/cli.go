package cli

import (
    "context"
    "fmt"
    "io"
    "log"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/spf13/cobra"
    "github.com/spf13/pflag"
    "github.com/spf13/viper"

    "github.com/amirimatin/go-erosion/pkg/bootstrap"
    "github.com/amirimatin/go-erosion/pkg/config"
    "github.com/amirimatin/go-erosion/pkg/internal/logutil"
    "github.com/amirimatin/go-erosion/pkg/observability/tracing"
    "github.com/amirimatin/go-erosion/pkg/transport"
)

// EnvPrefix prefixes environment overrides: --mgmt-addr ↔ EROSION_MGMT_ADDR.
const EnvPrefix = "erosion"

// AddAll attaches the node subcommands (run/status/members) and the logging
// flags to the provided root command.
func AddAll(root *cobra.Command) {
    var logJSON, debug bool
    root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON lines")
    root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging (per-packet tracing)")
    prev := root.PersistentPreRunE
    root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
        if cmd.Flags().Changed("log-json") { logutil.SetJSON(logJSON) }
        if cmd.Flags().Changed("debug") { logutil.SetDebug(debug) }
        if prev != nil { return prev(cmd, args) }
        return nil
    }
    root.AddCommand(NewRunCmd())
    root.AddCommand(NewStatusCmd())
    root.AddCommand(NewMembersCmd())
}

// newViper returns a viper instance reading flags, EROSION_* environment
// variables and an optional config file, in increasing order of precedence
// flag > env > file > default.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
    v := viper.New()
    v.SetEnvPrefix(EnvPrefix)
    v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
    v.AutomaticEnv()
    if err := v.BindPFlags(fs); err != nil { return nil, err }
    if path := v.GetString("config"); path != "" {
        v.SetConfigFile(path)
        if err := v.ReadInConfig(); err != nil { return nil, fmt.Errorf("read config %s: %w", path, err) }
    }
    return v, nil
}

// configFromViper maps resolved settings onto bootstrap.Config.
func configFromViper(v *viper.Viper) bootstrap.Config {
    return bootstrap.Config{
        Name:            v.GetString("name"),
        Bind:            v.GetString("bind"),
        Advertise:       v.GetString("advertise"),
        BindRetries:     v.GetUint64("bind-retries"),
        Engine:          v.GetString("engine"),
        Preset:          v.GetString("preset"),
        ProbeInterval:   v.GetDuration("probe-interval"),
        ProbeTimeout:    v.GetDuration("probe-timeout"),
        MgmtAddr:        v.GetString("mgmt-addr"),
        MgmtProto:       v.GetString("mgmt-proto"),
        DiscoveryKind:   v.GetString("discovery"),
        SeedsCSV:        v.GetString("join"),
        DNSNamesCSV:     v.GetString("dns-names"),
        DNSPort:         v.GetInt("dns-port"),
        DiscRefresh:     v.GetDuration("disc-refresh"),
        FilePath:        v.GetString("file-path"),
        FileEnv:         v.GetString("file-env"),
        EtcdEndpoints:   v.GetString("etcd-endpoints"),
        EtcdPrefix:      v.GetString("etcd-prefix"),
        EtcdRegisterTTL: v.GetDuration("etcd-register-ttl"),
        TLSEnable:       v.GetBool("tls-enable"),
        TLSCA:           v.GetString("tls-ca"),
        TLSCert:         v.GetString("tls-cert"),
        TLSKey:          v.GetString("tls-key"),
        TLSServerName:   v.GetString("tls-server-name"),
        TLSSkipVerify:   v.GetBool("tls-skip-verify"),
        Logger:          log.Default(),
    }
}

func addTLSFlags(fs *pflag.FlagSet) {
    fs.Bool("tls-enable", false, "enable mTLS for the management transport")
    fs.String("tls-ca", "", "path to CA cert (PEM)")
    fs.String("tls-cert", "", "path to node certificate (PEM)")
    fs.String("tls-key", "", "path to node private key (PEM)")
    fs.Bool("tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    fs.String("tls-server-name", "", "expected server name (for TLS validation)")
}

// NewRunCmd returns the "run" command used to start a node.
func NewRunCmd() *cobra.Command {
    cmd := &cobra.Command{
        Use:   "run",
        Short: "Run a membership node",
        RunE: func(cmd *cobra.Command, args []string) error {
            v, err := newViper(cmd.Flags())
            if err != nil { return err }
            ctx, cancel := signalContext()
            defer cancel()

            if v.GetBool("trace") {
                shutdown, err := tracing.Setup(true)
                if err != nil {
                    log.Printf("tracing setup error: %v", err)
                } else {
                    defer func() { _ = shutdown(context.Background()) }()
                }
            }

            n, err := bootstrap.Run(ctx, configFromViper(v))
            if err != nil { return err }
            defer n.Close()

            fmt.Fprintln(cmd.OutOrStdout(), "node running. Press Ctrl+C to exit.")
            <-ctx.Done()
            return nil
        },
    }
    fs := cmd.Flags()
    fs.String("config", "", "config file (yaml, json or toml) with the same keys as the flags")
    fs.String("name", "", "node name (default: random node-<id>)")
    fs.String("bind", fmt.Sprintf(":%d", config.DefaultPort), "membership bind addr (udp host:port)")
    fs.String("advertise", "", "advertise addr (host:port, optional)")
    fs.Uint64("bind-retries", 0, "on address in use, try this many following ports")
    fs.String("engine", bootstrap.EngineSwim, "failure detector: swim|memberlist")
    fs.String("preset", "lan", "timing preset: lan|wan|local")
    fs.Duration("probe-interval", 0, "override the preset probe interval")
    fs.Duration("probe-timeout", 0, "override the preset probe timeout")
    fs.String("join", "", "comma-separated seeds name=host:port (discovery=static)")
    fs.String("mgmt-addr", fmt.Sprintf(":%d", config.DefaultPort+10000), "management address (tcp); empty disables it")
    fs.String("mgmt-proto", "http", "management RPC protocol: http|grpc")
    fs.String("discovery", "static", "discovery backend: static|dns|file|etcd")
    fs.String("dns-names", "", "comma-separated DNS names or SRV records (e.g., _erosion._udp.example.com)")
    fs.Int("dns-port", config.DefaultPort, "port used for A/AAAA lookups")
    fs.Duration("disc-refresh", 5*time.Second, "discovery refresh/cache duration")
    fs.String("file-path", "", "path or glob to a file with seeds (one per line or CSV)")
    fs.String("file-env", "", "ENV var name containing CSV seeds; overrides file when set")
    fs.String("etcd-endpoints", "", "comma-separated etcd endpoints (discovery=etcd)")
    fs.String("etcd-prefix", "", "etcd key prefix for seeds")
    fs.Duration("etcd-register-ttl", 0, "register this node in etcd with this lease TTL (0 disables)")
    fs.Bool("trace", false, "enable OpenTelemetry stdout tracing (dev)")
    addTLSFlags(fs)
    return cmd
}

// NewStatusCmd returns the "status" command.
func NewStatusCmd() *cobra.Command {
    return newFetchCmd("status", "Fetch node status as JSON", func(ctx context.Context, c transport.RPCClient, addr string) ([]byte, error) {
        return c.GetStatus(ctx, addr)
    })
}

// NewMembersCmd returns the "members" command.
func NewMembersCmd() *cobra.Command {
    return newFetchCmd("members", "Fetch the node's member list as JSON", func(ctx context.Context, c transport.RPCClient, addr string) ([]byte, error) {
        return c.GetMembers(ctx, addr)
    })
}

func newFetchCmd(use, short string, fetch func(context.Context, transport.RPCClient, string) ([]byte, error)) *cobra.Command {
    cmd := &cobra.Command{
        Use:   use,
        Short: short,
        RunE: func(cmd *cobra.Command, args []string) error {
            v, err := newViper(cmd.Flags())
            if err != nil { return err }
            timeout := v.GetDuration("timeout")
            cfg := configFromViper(v)
            c, err := bootstrap.NewClient(cfg, timeout)
            if err != nil { return err }
            if cl, ok := c.(io.Closer); ok { defer cl.Close() }

            ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
            defer cancel()
            data, err := fetch(ctx, c, v.GetString("addr"))
            if err != nil { return fmt.Errorf("%s error: %w", use, err) }
            out := cmd.OutOrStdout()
            _, _ = out.Write(data)
            if len(data) == 0 || data[len(data)-1] != '\n' { _, _ = out.Write([]byte("\n")) }
            return nil
        },
    }
    fs := cmd.Flags()
    fs.String("config", "", "config file (yaml, json or toml)")
    fs.String("addr", fmt.Sprintf("127.0.0.1:%d", config.DefaultPort+10000), "management address of a node (host:port)")
    fs.String("mgmt-proto", "http", "management RPC protocol: http|grpc")
    fs.Duration("timeout", 3*time.Second, "request timeout")
    addTLSFlags(fs)
    return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
    return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
