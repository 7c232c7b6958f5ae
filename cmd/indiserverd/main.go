// Command indiserverd runs the INDI server router: it binds a TCP listener
// for client connections, optionally launches subprocess drivers and dials
// outgoing remote-server upstreams, per the flags below.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/astrogo/indiserver/indi"
	"github.com/astrogo/indiserver/server"
	"github.com/rickbassham/logging"
)

type remoteFlag struct {
	host string
	port int
}

type remoteFlags []remoteFlag

func (r *remoteFlags) String() string {
	parts := make([]string, 0, len(*r))
	for _, rf := range *r {
		parts = append(parts, fmt.Sprintf("%s:%d", rf.host, rf.port))
	}
	return strings.Join(parts, ",")
}

func (r *remoteFlags) Set(value string) error {
	host, portStr, err := splitHostPort(value)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("remote %q: invalid port: %w", value, err)
	}
	*r = append(*r, remoteFlag{host: host, port: port})
	return nil
}

func splitHostPort(value string) (string, string, error) {
	idx := strings.LastIndex(value, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("remote %q must be host:port", value)
	}
	return value[:idx], value[idx+1:], nil
}

type driverFlags []string

func (d *driverFlags) String() string { return strings.Join(*d, ",") }
func (d *driverFlags) Set(value string) error {
	*d = append(*d, value)
	return nil
}

func main() {
	var (
		host           = flag.String("host", "localhost", "address to bind for client connections")
		port           = flag.Int("port", 7624, "port to bind for client connections")
		maxConnections = flag.Int("maxconnections", server.DefaultMaxConnections, fmt.Sprintf("maximum concurrent client connections (hard ceiling %d)", server.MaxConnectionsCeiling))
		remotes        remoteFlags
		drivers        driverFlags
	)
	flag.Var(&remotes, "remote", "host:port of an upstream INDI server to connect to; may be repeated")
	flag.Var(&drivers, "driver", "path to a subprocess driver executable to launch; may be repeated")
	flag.Parse()

	log := logging.NewLogger(os.Stdout, logging.JSONFormatter{}, logging.LogLevelInfo)

	srv := server.New(server.Config{
		Host:           *host,
		Port:           *port,
		MaxConnections: *maxConnections,
		Log:            log,
	})

	for _, path := range drivers {
		if err := srv.AddSubprocessDriver(path); err != nil {
			log.WithField("driver", path).WithError(err).Error("indiserverd: failed to launch subprocess driver")
			os.Exit(1)
		}
	}

	for _, r := range remotes {
		srv.AddRemote(r.host, r.port, indi.BlobAlso)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.WithField("host", *host).WithField("port", *port).Info("indiserverd: listening")
	if err := srv.Serve(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "indiserverd: %v\n", err)
		log.WithError(err).Error("indiserverd: listen failed")
		os.Exit(1)
	}

	srv.Shutdown()
}
