// Command styledrop manages attachments from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/styledrop/internal/app"
	"github.com/dharsanguruparan/styledrop/internal/attachment"
	"github.com/dharsanguruparan/styledrop/internal/config"
	"github.com/dharsanguruparan/styledrop/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand(os.Stdout, loadApp)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "styledrop: %v\n", err)
		os.Exit(1)
	}
}

type appLoader func(ctx context.Context, cfg *config.Config) (*app.App, error)

func loadApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log, app.Options{})
}

type cli struct {
	out         io.Writer
	load        appLoader
	definitions string
}

func newRootCommand(out io.Writer, load appLoader) *cobra.Command {
	c := &cli{out: out, load: load}
	cmd := &cobra.Command{
		Use:   "styledrop",
		Short: "Attach, process and inspect files on host records",
		Long: `styledrop drives attachments through their lifecycle using the same
configuration as the server: STYLEDROP_* environment variables plus an
optional definitions file.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&c.definitions, "definitions", "d", "", "Attachment definitions file (overrides STYLEDROP_DEFINITIONS)")
	cmd.AddCommand(
		c.newAssignCmd(),
		c.newProcessCmd(),
		c.newShowCmd(),
		c.newURLCmd(),
		c.newDestroyCmd(),
		c.newDefinitionsCmd(),
	)
	return cmd
}

func (c *cli) app(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if c.definitions != "" {
		cfg.DefinitionsFile = c.definitions
	}
	return c.load(ctx, cfg)
}

func (c *cli) newAssignCmd() *cobra.Command {
	var inline bool
	cmd := &cobra.Command{
		Use:   "assign TYPE ID ATTACHMENT FILE",
		Short: "Attach FILE to a record and schedule processing",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			f, err := os.Open(args[3])
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := a.Service.Assign(ctx, args[0], args[1], args[2], f); err != nil {
				return err
			}
			// Without Redis nothing else would pick the job up.
			if inline || a.Pool != nil {
				if err := a.Service.Process(ctx, args[0], args[1], args[2]); err != nil {
					return err
				}
			}
			return c.show(ctx, a, args[0], args[1], args[2])
		},
	}
	cmd.Flags().BoolVar(&inline, "process", false, "Process immediately instead of waiting for a worker")
	return cmd
}

func (c *cli) newProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process TYPE ID ATTACHMENT",
		Short: "Style and store a saved upload",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Service.Process(ctx, args[0], args[1], args[2]); err != nil {
				return err
			}
			return c.show(ctx, a, args[0], args[1], args[2])
		},
	}
}

func (c *cli) newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show TYPE ID ATTACHMENT",
		Short: "Print an attachment's status and URLs",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return c.show(ctx, a, args[0], args[1], args[2])
		},
	}
}

func (c *cli) newURLCmd() *cobra.Command {
	var (
		style   string
		expires time.Duration
	)
	cmd := &cobra.Command{
		Use:   "url TYPE ID ATTACHMENT",
		Short: "Print the URL of a style",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			_, att, err := a.Service.Open(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			if style == "" {
				style = att.DefaultStyle()
			}
			u := att.URL(style, false)
			if expires > 0 {
				if u, err = att.ExpiringURL(ctx, style, expires); err != nil {
					return err
				}
			}
			fmt.Fprintln(c.out, u)
			return nil
		},
	}
	cmd.Flags().StringVarP(&style, "style", "s", "", "Style name (defaults to the attachment's default style)")
	cmd.Flags().DurationVarP(&expires, "expires", "e", 0, "Print a signed URL valid for this long")
	return cmd
}

func (c *cli) newDestroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy TYPE ID ATTACHMENT",
		Short: "Delete every file of an attachment",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Service.Destroy(ctx, args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "destroyed %s/%s/%s\n", args[0], args[1], args[2])
			return nil
		},
	}
}

func (c *cli) newDefinitionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "definitions",
		Short: "Validate and list attachment definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.definitions
			if path == "" {
				path = os.Getenv("STYLEDROP_DEFINITIONS")
			}
			catalog, err := config.LoadCatalog(path)
			if err != nil {
				return err
			}
			for _, rt := range catalog.RecordTypes() {
				for _, name := range catalog.Attachments(rt) {
					def, _ := catalog.Lookup(rt, name)
					styles := def.Styles
					if len(styles) == 0 {
						styles = attachment.DefaultStyles
					}
					names := make([]string, len(styles))
					for i, s := range styles {
						names[i] = s.Name
					}
					storage := string(def.Storage)
					if storage == "" {
						storage = "filesystem"
					}
					fmt.Fprintf(c.out, "%s.%s storage=%s styles=%v\n", rt, name, storage, names)
				}
			}
			return nil
		},
	}
}

type summary struct {
	Status      string            `json:"status"`
	ContentType string            `json:"content_type,omitempty"`
	Size        int64             `json:"size"`
	URLs        map[string]string `json:"urls,omitempty"`
}

func (c *cli) show(ctx context.Context, a *app.App, recordType, id, name string) error {
	_, att, err := a.Service.Open(ctx, recordType, id, name)
	if err != nil {
		return err
	}
	s := summary{Status: att.Status().String(), Size: att.Size()}
	if att.File() {
		s.ContentType = att.ContentType(attachment.UploadStyle)
		s.URLs = map[string]string{}
		for _, st := range att.Styles() {
			s.URLs[st.Name] = att.URL(st.Name, false)
		}
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
