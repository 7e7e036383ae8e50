package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrEthical07/catfeed"
	"github.com/MrEthical07/catfeed/accounts"
	"github.com/MrEthical07/catfeed/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func createAdminCmd() *cobra.Command {
	var (
		dbPath string
		in     catfeed.RegistrationInput
	)

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Long: `Create an administrator account in the SQLite database.

The password is read from --password, or from the first line of stdin when
the flag is empty. It must satisfy the same policy as a web registration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Password == "" {
				pw, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				in.Password = pw
			}
			in.RepeatPassword = in.Password

			account, err := createAdmin(cmd.Context(), dbPath, in)
			if err != nil {
				var fe *catfeed.FieldError
				if errors.As(err, &fe) {
					return fmt.Errorf("%s: %s", fe.Field, fe.Message)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s account %q\n", account.Role, account.Username)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&dbPath, "db", envOr("CATFEED_DB", "catfeed.db"), "SQLite database file")
	f.StringVar(&in.FirstName, "first-name", "", "first name")
	f.StringVar(&in.LastName, "last-name", "", "last name")
	f.StringVar(&in.Email, "email", "", "email address")
	f.StringVar(&in.Username, "username", "", "username")
	f.StringVar(&in.Password, "password", "", "password; read from stdin when empty")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

// createAdmin runs the account through the engine so the same validation and
// credential encoding apply. The engine needs a session store to build, so an
// in-process Redis stands in; account creation never touches it.
func createAdmin(ctx context.Context, dbPath string, in catfeed.RegistrationInput) (catfeed.Account, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := openDB(dbPath)
	if err != nil {
		return catfeed.Account{}, err
	}
	defer db.Close()

	store, err := accounts.NewSQLiteStore(ctx, db)
	if err != nil {
		return catfeed.Account{}, err
	}

	mr, err := miniredis.Run()
	if err != nil {
		return catfeed.Account{}, err
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	engine, err := catfeed.New().
		WithRedis(rdb).
		WithAccounts(store).
		WithMetricsEnabled(false).
		Build()
	if err != nil {
		return catfeed.Account{}, err
	}
	defer engine.Close()

	return engine.CreateAccount(ctx, in, catfeed.RoleAdmin)
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [plaintext]",
		Short: "Print the stored form of a password",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var plaintext string
			if len(args) == 1 {
				plaintext = args[0]
			} else {
				pw, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				plaintext = pw
			}

			codec, err := password.NewCodec(password.Config{})
			if err != nil {
				return err
			}
			stored, err := codec.Hash(plaintext)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), stored)
			return nil
		},
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
