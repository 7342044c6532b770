package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginCompany  string
	loginUsername string
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with your teacher account",
	Long: `Authenticates against the MDM API with your company, username and password and keeps the
session in the encrypted keystore. A pending logout is replaced by the new session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()
		company, err := promptIfEmpty(in, out, loginCompany, "Company: ")
		if err != nil {
			return err
		}
		username, err := promptIfEmpty(in, out, loginUsername, "Username: ")
		if err != nil {
			return err
		}
		password, err := readPassword(cmd.InOrStdin(), in, out)
		if err != nil {
			return err
		}

		s, err := current.auth.Authenticate(cmd.Context(), company, username, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Logged in as %s (%s).\n", s.User.DisplayName, s.User.Username)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVar(&loginCompany, "company", "", "Company identifier")
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "Teacher username")
}

// promptIfEmpty returns value, or reads one line from in after printing label.
func promptIfEmpty(in *bufio.Reader, out io.Writer, value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword reads the password without echo when stdin is a terminal, and falls back
// to a plain line read for pipes and redirected input.
func readPassword(stdin io.Reader, in *bufio.Reader, out io.Writer) (string, error) {
	f, ok := stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return promptIfEmpty(in, out, "", "Password: ")
	}
	fmt.Fprint(out, "Password: ")
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
