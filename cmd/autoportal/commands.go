package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"autoportal/internal/config"
	"autoportal/internal/creds"
	"autoportal/internal/models"
	"autoportal/internal/notify"
	"autoportal/internal/service"
	"autoportal/internal/state"
)

func newSetupCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Store credentials and install the background service",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := promptCredentials(username)
			if err != nil {
				return err
			}

			if err := creds.NewStore().Set(c); err != nil {
				return err
			}

			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable path: %w", err)
			}
			if err := service.NewManager(execPath).Install(); err != nil {
				return err
			}

			fmt.Println("Setup completed successfully.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "portal username")
	return cmd
}

func newUpdateCredentialsCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "update-credentials",
		Short: "Replace the stored credentials, validating against a live portal when possible",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := creds.NewStore()
			current, err := store.Get()
			if err != nil {
				return fmt.Errorf("no existing credentials found, use 'autoportal setup' instead")
			}
			fmt.Printf("Current username: %s\n\n", current.Username)

			candidate, err := promptCredentials(username)
			if err != nil {
				return err
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			stack := buildStack(cfg)
			// One validation attempt; repeated bad passwords can trip
			// the portal's account lockout.
			stack.session.MaxAttempts = 1

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			fmt.Println("Validating credentials...")
			probe, err := stack.prober.Probe(ctx)
			switch {
			case err != nil:
				fmt.Printf("Portal check failed: %v. Storing credentials anyway...\n", err)
			case probe.Clear:
				fmt.Println("No captive portal detected. Credentials cannot be validated; storing anyway...")
			default:
				fmt.Println("Captive portal detected. Testing credentials...")
				stack.submitter.Logout(ctx)
				time.Sleep(2 * time.Second)

				res := stack.session.Run(ctx, candidate)
				if res.Success && res.LoggedIn {
					fmt.Println("Credentials validated successfully.")
				} else if !res.Success {
					fmt.Printf("Credential validation failed: %v\n", res.Err)
					ok, err := promptYesNo("Credentials may be incorrect. Store anyway? (y/N): ")
					if err != nil {
						return err
					}
					if !ok {
						fmt.Println("Credential update cancelled.")
						return nil
					}
				}
			}

			if err := store.Set(candidate); err != nil {
				return err
			}
			fmt.Println("\nCredentials updated successfully.")
			fmt.Println("The service will use the new credentials on the next login attempt.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "portal username")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show credential, service, connectivity and portal status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			credsConfigured := false
			if c, err := creds.NewStore().Get(); err == nil {
				fmt.Printf("Credentials:   configured (user: %s)\n", c.Username)
				credsConfigured = true
			} else {
				fmt.Println("Credentials:   not configured (run 'autoportal setup')")
			}

			execPath, _ := os.Executable()
			running, stateText := service.NewManager(execPath).Status()
			fmt.Printf("Service:       %s\n", stateText)

			stack := buildStack(cfg)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			probe, err := stack.prober.Probe(ctx)
			switch {
			case err != nil:
				fmt.Println("Internet:      check failed")
			case probe.Clear:
				fmt.Println("Internet:      connected")
				fmt.Println("Portal:        not detected")
			default:
				fmt.Println("Internet:      not connected")
				fmt.Println("Portal:        detected")
				fmt.Printf("Portal URL:    %s\n", probe.RedirectURL)
			}

			statusStore, err := state.NewStore(cfg.DataDirectory + "/state.json")
			if err == nil {
				rec := statusStore.Load()
				if rec.LastCheck != nil {
					fmt.Printf("Last check:    %s\n", state.FormatAgo(*rec.LastCheck))
				}
				if rec.LastLogin != nil {
					fmt.Printf("Last login:    %s\n", state.FormatAgo(*rec.LastLogin))
				}
				if rec.LastPortal != "" {
					fmt.Printf("Last portal:   %s\n", rec.LastPortal)
				}
			}

			if !credsConfigured {
				fmt.Println("\nRun 'autoportal setup' to configure credentials.")
			} else if !running {
				fmt.Println("\nService is not running; check the system logs.")
			}
			return nil
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check credentials, connectivity and token extraction end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			c, err := creds.NewStore().Get()
			if err != nil {
				return fmt.Errorf("failed to retrieve credentials: %w", err)
			}
			fmt.Printf("Credentials found for user: %s\n", c.Username)

			stack := buildStack(cfg)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			probe, err := stack.prober.Probe(ctx)
			if err != nil {
				return fmt.Errorf("network check failed: %w", err)
			}
			if probe.Clear {
				fmt.Println("No captive portal detected (internet is accessible).")
				return nil
			}

			fmt.Printf("Captive portal detected at: %s\n", probe.RedirectURL)
			token, err := stack.session.FetchToken(ctx, probe.RedirectURL)
			if err != nil {
				return fmt.Errorf("token extraction failed: %w", err)
			}
			fmt.Printf("Magic value extracted: %s\n", token.Magic)
			fmt.Println("Health check completed successfully.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	var clearCredentials bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Log out from the captive portal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			stack := buildStack(cfg)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			fmt.Println("Logging out from captive portal...")
			stack.submitter.Logout(ctx)
			notify.New(cfg.Notifications).Notify("Logged out from captive portal.")

			if clearCredentials {
				if err := creds.NewStore().Clear(); err != nil {
					return err
				}
				fmt.Println("Credentials cleared.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearCredentials, "clear-credentials", false, "also remove stored credentials")
	return cmd
}

func newServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the OS background service",
	}

	actions := map[string]func(*service.Manager) error{
		"install":   (*service.Manager).Install,
		"uninstall": (*service.Manager).Uninstall,
		"start":     (*service.Manager).Start,
		"stop":      (*service.Manager).Stop,
	}
	for name, action := range actions {
		name, action := name, action
		cmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: name + " the background service",
			RunE: func(cmd *cobra.Command, args []string) error {
				execPath, err := os.Executable()
				if err != nil {
					return fmt.Errorf("resolve executable path: %w", err)
				}
				if err := action(service.NewManager(execPath)); err != nil {
					return err
				}
				fmt.Printf("Service %s completed.\n", name)
				return nil
			},
		})
	}
	return cmd
}

func promptCredentials(username string) (models.Credentials, error) {
	var err error
	if username == "" {
		username, err = promptLine("Enter LDAP Username: ")
		if err != nil {
			return models.Credentials{}, err
		}
	}
	password, err := promptPassword("Enter LDAP Password: ")
	if err != nil {
		return models.Credentials{}, err
	}

	if strings.TrimSpace(username) == "" {
		return models.Credentials{}, fmt.Errorf("username cannot be empty")
	}
	if strings.TrimSpace(password) == "" {
		return models.Credentials{}, fmt.Errorf("password cannot be empty")
	}
	return models.Credentials{Username: strings.TrimSpace(username), Password: password}, nil
}

func promptLine(label string) (string, error) {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(label string) (string, error) {
	fmt.Print(label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func promptYesNo(label string) (bool, error) {
	answer, err := promptLine(label)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(answer, "y"), nil
}
