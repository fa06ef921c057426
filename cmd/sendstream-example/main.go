// Command sendstream-example serves a directory over HTTP/1.1. With
// --gateway it instead starts a grpc server and a grpc-gateway mux
// wired with sendstream's gateway options; no service is registered in
// that mode, so the directory is not served through it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/black-06/sendstream"
	"github.com/black-06/sendstream/fs"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sendstream-example",
		Short: "Serve a directory with the sendstream response engine",
	}
	cmd.AddCommand(newServeCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	var (
		addr        string
		dir         string
		listFiles   bool
		logJSON     bool
		gatewayMode bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(logJSON)

			onDirectory := fs.OnDirectoryError
			if listFiles {
				onDirectory = fs.OnDirectoryListFiles
			}
			storage := fs.New(fs.Options{
				Root: dir,
				ContentEncodingMappings: []fs.EncodingMapping{
					{Pattern: "*", Encodings: []fs.EncodingVariant{
						{Name: "br", Suffix: ".br"},
						{Name: "gzip", Suffix: ".gz"},
					}},
				},
				OnDirectory: onDirectory,
			})

			if gatewayMode {
				return serveGateway(cmd.Context(), addr)
			}
			return serveHTTP(cmd.Context(), addr, storage)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "listen address")
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory to serve")
	cmd.Flags().BoolVar(&listFiles, "list-files", false, "synthesize directory listings instead of 404ing on them")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "emit JSON logs instead of the tinted console format")
	cmd.Flags().BoolVar(&gatewayMode, "gateway", false, "start the grpc-gateway mux wiring demo (no service registered) instead of plain net/http")
	bindPortEnv(cmd.Flags(), "addr")
	return cmd
}

// bindPortEnv lets a $PORT environment variable override --addr's port,
// the same convenience pgaskin-ottrec-website's main.go offers for
// platforms (e.g. PaaS hosts) that inject the listen port via PORT
// rather than a CLI flag.
func bindPortEnv(flags *pflag.FlagSet, flagName string) {
	port, ok := os.LookupEnv("PORT")
	if !ok {
		return
	}
	if err := flags.Set(flagName, ":"+port); err != nil {
		slog.Warn("apply PORT override", "error", err)
	}
}

func setupLogging(logJSON bool) {
	if logJSON {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
		return
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{TimeFormat: time.Kitchen})))
}

// serveHTTP wires storage into a plain net/http.Handler via
// sendstream.Prepare and httpSink.
func serveHTTP(ctx context.Context, addr string, storage *fs.Storage) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		resp, err := sendstream.Prepare(r.Context(), storage, r.URL.Path, sendstream.RequestFromHTTP(r), nil)
		if err != nil {
			slog.Error("prepare response", "path", r.URL.Path, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if err := resp.Send(r.Context(), sendstream.NewHTTPSink(w)); err != nil {
			slog.Warn("send response", "path", r.URL.Path, "error", err)
		}
	})

	slog.Info("http: listening", "addr", addr)
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	return server.ListenAndServe()
}

// serveGateway starts a grpc server and an HTTP/2 grpc-gateway mux
// wired with the Gateway* ServeMuxOptions, the same pattern the
// teacher's examples/main.go used for WithFileIncomingHeaderMatcher /
// WithFileForwardResponseOption / WithHTTPBodyMarshaler. A real
// deployment registers a generated streaming RPC service here whose
// handler calls sendstream.Prepare and sends through NewGatewaySink;
// this binary only demonstrates the mux wiring itself.
func serveGateway(ctx context.Context, addr string) error {
	grpcAddr := ":0"
	listener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer := grpc.NewServer()
	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			slog.Error("grpc server stopped", "error", err)
		}
	}()

	mux := runtime.NewServeMux(
		sendstream.WithGatewayIncomingHeaderMatcher(),
		sendstream.WithGatewayForwardResponseOption(),
		sendstream.WithHTTPBodyMarshaler(),
	)
	conn, err := grpc.DialContext(ctx, listener.Addr().String(), grpc.WithBlock(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial grpc: %w", err)
	}
	defer func() { _ = conn.Close() }()

	slog.Info("http: listening (gateway mode)", "addr", addr)
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	return server.ListenAndServe()
}
