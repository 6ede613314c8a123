package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codefionn/chatd/internal/socketclient"
)

var clientFlags struct {
	addr     string
	user     string
	password string
}

// clientCmd sends one command to a running server and prints the reply.
var clientCmd = &cobra.Command{
	Use:   "client <command...>",
	Short: "Send one command to a running server",
	Long: `Connect to a chatd server, optionally log in, send one command and print
the reply. With --user the password comes from --password, CHATD_PASSWORD or
an interactive prompt.

Examples:
  chatd client --user alice task list
  chatd client --user alice chat send "hello there"
  chatd client --user alice upload ./notes.txt
  chatd client --user alice download notes.txt ./copy.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c *socketclient.Client) error {
			reply, err := c.Command(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		})
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <path> [name]",
	Short: "Upload a local file to the shared file area",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		name := filepath.Base(args[0])
		if len(args) == 2 {
			name = args[1]
		}

		return withClient(cmd.Context(), func(ctx context.Context, c *socketclient.Client) error {
			reply, err := c.Upload(ctx, name, data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <name> [out]",
	Short: "Download a shared file (to stdout when out is omitted or -)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c *socketclient.Client) error {
			data, err := c.Download(ctx, args[0])
			if err != nil {
				return err
			}
			if len(args) == 1 || args[1] == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(args[1], data, 0644)
		})
	},
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.AddCommand(uploadCmd, downloadCmd)

	clientCmd.PersistentFlags().StringVar(&clientFlags.addr, "addr", "127.0.0.1:7002", "Server address")
	clientCmd.PersistentFlags().StringVar(&clientFlags.user, "user", "", "Log in as this user before the command")
	clientCmd.PersistentFlags().StringVar(&clientFlags.password, "password", "", "Password for --user")
}

func withClient(ctx context.Context, fn func(context.Context, *socketclient.Client) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := socketclient.Dial(ctx, clientFlags.addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if clientFlags.user != "" {
		password, err := clientPassword()
		if err != nil {
			return err
		}
		if err := c.Login(ctx, clientFlags.user, password); err != nil {
			return err
		}
	}
	return fn(ctx, c)
}

func clientPassword() (string, error) {
	if clientFlags.password != "" {
		return clientFlags.password, nil
	}
	if pw := os.Getenv("CHATD_PASSWORD"); pw != "" {
		return pw, nil
	}
	return promptForPassword(fmt.Sprintf("Password for %s: ", clientFlags.user))
}
