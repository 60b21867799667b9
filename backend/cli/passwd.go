package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cinefm/backend/internal/config"
	"cinefm/backend/internal/types"
)

func newPasswdCmd(_ *rootOptions) *cobra.Command {
	var host, user string
	cmd := &cobra.Command{
		Use:   "passwd --host <host> --user <user>",
		Short: "Store an endpoint password in the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, fmt.Sprintf("Password for %s@%s: ", user, host))
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("empty password")
			}
			ep := types.EndpointConfig{Host: host, User: user}
			if err := config.SaveEndpointPassword(ep, password); err != nil {
				return fmt.Errorf("save password: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password stored for %s@%s\n", user, host)
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "endpoint host, as written in the config file")
	cmd.Flags().StringVar(&user, "user", "", "endpoint user")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// readPassword 在终端上不回显读取；stdin 不是终端时读取一行
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
