// stn watches the Steam item arbitrage board and mails a screenshot of it,
// along with the newest market data dump, to a list of recipients on a
// cron schedule.
//
// Configuration is read from stn_config.{yaml,toml,json} in the working
// directory or from --config, with STN_CONFIG__SECTION__KEY environment
// overrides. The SMTP password may be kept in the system keyring instead
// of the config file; store it with --set-password.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/tebeka/atexit"
	"golang.org/x/term"

	"github.com/nhle/steam-trading-notice/internal/app"
	"github.com/nhle/steam-trading-notice/internal/credential"
	"github.com/nhle/steam-trading-notice/internal/logs"
	"github.com/nhle/steam-trading-notice/internal/model"
	"github.com/nhle/steam-trading-notice/internal/store"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			atexit.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func run() error {
	var configPath string
	var setPassword bool
	var clearPassword bool
	var noTestMail bool
	var history int

	flagSet := pflag.NewFlagSet("stn", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "config file (default: ./stn_config.{yaml,toml,json})")
	flagSet.BoolVar(&setPassword, "set-password", false, "store the SMTP password for mail.smtp_username in the system keyring and exit")
	flagSet.BoolVar(&clearPassword, "clear-password", false, "remove the stored SMTP password for mail.smtp_username and exit")
	flagSet.IntVar(&history, "history", 0, "print the newest N recorded deliveries and exit")
	flagSet.BoolVar(&noTestMail, "no-test-mail", false, "skip the test mail sent at startup")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if setPassword {
		return storePassword(cfg.Mail.SMTPUsername)
	}
	if clearPassword {
		return removePassword(cfg.Mail.SMTPUsername)
	}
	if history > 0 {
		return printHistory(cfg.Store.Path, history)
	}

	logger, err := logs.New(logs.Config{
		Level:      cfg.Log.MaxLevel,
		File:       cfg.Log.File,
		AlsoStdout: cfg.Log.AlsoStdout,
	})
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	creds, err := credential.Open()
	if err != nil {
		logger.Warn("system keyring unavailable", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manual, stopManual := manualTrigger()
	defer stopManual()

	logger.Info("starting", "recipients", len(cfg.Mail.SMTPSendTo))

	if err := app.Run(ctx, cfg, logger, app.Options{
		NoTestMail:  noTestMail,
		Credentials: creds,
		Manual:      manual,
	}); err != nil {
		logger.Error("fatal error", "err", err)
		return err
	}

	logger.Info("stopped")
	return nil
}

// removePassword deletes the stored SMTP password.
func removePassword(username string) error {
	if username == "" {
		return errors.New("mail.smtp_username must be set to clear its password")
	}

	creds, err := credential.Open()
	if err != nil {
		return err
	}
	err = creds.Delete(credential.SMTPKey(username))
	if errors.Is(err, credential.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "no password stored for %s\n", username)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "password removed for %s\n", username)
	return nil
}

// printHistory lists recent deliveries from the history database.
func printHistory(path string, limit int) error {
	st, err := store.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("opening delivery history: %w", err)
	}
	defer st.Close()

	return app.PrintHistory(context.Background(), os.Stdout, st, limit)
}

// storePassword prompts for the SMTP password without echo and saves it.
func storePassword(username string) error {
	if username == "" {
		return errors.New("mail.smtp_username must be set before storing a password")
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("no terminal available for the password prompt")
	}

	fmt.Fprintf(os.Stderr, "SMTP password for %s: ", username)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if strings.TrimSpace(string(password)) == "" {
		return errors.New("empty password")
	}

	creds, err := credential.Open()
	if err != nil {
		return err
	}
	if err := creds.Set(credential.SMTPKey(username), string(password)); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "password stored for %s\n", username)
	return nil
}
