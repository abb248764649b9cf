// Command cvsync is the mirror-side client: it dials an origin server,
// negotiates one or more collections, and applies the reverse records
// the server sends against local directories.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dittosync/cvsync/internal/logger"
	"github.com/dittosync/cvsync/pkg/collection"
	"github.com/dittosync/cvsync/pkg/digest"
	"github.com/dittosync/cvsync/pkg/session"
	"github.com/dittosync/cvsync/pkg/transport"
)

type collectionFlag []session.ClientCollection

func (c *collectionFlag) String() string { return "" }

// Set parses one -collection flag in the form "name=release:localdir",
// e.g. "docs=rcs:/srv/mirror/docs".
func (c *collectionFlag) Set(v string) error {
	name, rest, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("malformed -collection %q: want name=release:localdir", v)
	}
	release, root, ok := strings.Cut(rest, ":")
	if !ok {
		return fmt.Errorf("malformed -collection %q: want name=release:localdir", v)
	}
	*c = append(*c, session.ClientCollection{
		Name:      name,
		Release:   collection.Release(release),
		LocalRoot: root,
	})
	return nil
}

// Type satisfies pflag.Value for cobra's flag registration.
func (c *collectionFlag) Type() string { return "stringSlice" }

var (
	addr        string
	hash        string
	timeout     time.Duration
	collections collectionFlag
)

var rootCmd = &cobra.Command{
	Use:   "cvsync",
	Short: "cvsync is the cvsync mirror-side client",
	Long: `cvsync dials an origin server, negotiates one or more
collections, and applies the reverse records the server sends against
local directories.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(addr, hash, timeout, collections)
	},
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", "", "origin server address, host:port")
	rootCmd.Flags().StringVar(&hash, "hash", string(digest.Fallback), "preferred digest algorithm (md5, sha1, rmd160)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall session timeout")
	rootCmd.Flags().Var(&collections, "collection", "name=release:localdir, repeatable")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cvsync:", err)
		os.Exit(1)
	}
}

func run(addr, hash string, timeout time.Duration, collections collectionFlag) error {
	if addr == "" {
		return fmt.Errorf("cvsync: -addr is required")
	}
	if len(collections) == 0 {
		return fmt.Errorf("cvsync: at least one -collection is required")
	}
	if err := logger.Init(logger.Config{Level: "INFO", Format: "text", Output: "stderr"}); err != nil {
		return fmt.Errorf("cvsync: init logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	dialer := transport.NewDialer(transport.DefaultDialTimeout, nil)
	conn, err := dialer.Dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("cvsync: %w", err)
	}
	defer conn.Close()

	return session.RunClient(ctx, conn, session.ClientConfig{
		Preferred:   digest.Name(hash),
		Collections: collections,
	})
}
