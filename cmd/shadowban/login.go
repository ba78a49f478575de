package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	shadowban "github.com/anatolykoptev/go-shadowban"
)

func newLoginCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <screen_name>",
		Short: "Log a reference account in and persist its cookies",
		Long: `Runs the account login flow once and saves the resulting cookies to the
configured cookie store (--cookie-dir or --keyring), so later runs skip the flow.
The password is taken from the accounts file when listed there, otherwise it is
prompted for.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), v, cmd.InOrStdin(), cmd.OutOrStdout(), args[0])
		},
	}
	cmd.Flags().String("email", "", "email for the alternate identifier step")
	cmd.Flags().String("totp", "", "TOTP secret for two-factor login")
	return cmd
}

func runLogin(ctx context.Context, v *viper.Viper, in io.Reader, out io.Writer, name string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	v.Set("guests", 0)
	cfg, closer, err := buildConfig(v)
	if err != nil {
		return err
	}
	defer closer.Close()
	if cfg.CookieStore == nil {
		return errors.New("no cookie store configured, set --cookie-dir or --keyring")
	}

	cred := findCredential(cfg.Accounts, name)
	if email := v.GetString("email"); email != "" {
		cred.Email = email
	}
	if secret := v.GetString("totp"); secret != "" {
		cred.TOTPSecret = secret
	}
	if cred.Password == "" {
		fmt.Fprintf(out, "Password for %s: ", cred.ScreenName)
		pw, err := readPassword(in, out)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		cred.Password = pw
	}

	s := shadowban.NewSession(cfg, &cred)
	if err := s.Login(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged in as %s\n", s.ScreenName())
	return nil
}

func findCredential(accounts []shadowban.Credential, name string) shadowban.Credential {
	for _, c := range accounts {
		if strings.EqualFold(c.ScreenName, name) {
			return c
		}
	}
	return shadowban.Credential{ScreenName: name}
}

// readPassword reads without echo when in is a terminal, otherwise one line.
func readPassword(in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
