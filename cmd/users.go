package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/audit"
	"github.com/ziadkadry99/finchat/internal/auth"
)

// cliActor identifies command-line account changes in the audit trail.
const cliActor = "cli"

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage finchat user accounts",
}

var usersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user account",
	RunE:  runUsersAdd,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List user accounts",
	RunE:  runUsersList,
}

var usersDeactivateCmd = &cobra.Command{
	Use:   "deactivate [email]",
	Short: "Deactivate a user account",
	Long:  `Deactivates the account with the given email. The user's sessions stop working on their next request.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersDeactivate,
}

func init() {
	usersAddCmd.Flags().String("email", "", "email address (required)")
	usersAddCmd.Flags().String("name", "", "display name (required)")
	usersAddCmd.Flags().String("role", "employee", "access role: finance, marketing, hr, engineering, employee, c-level")
	usersAddCmd.Flags().String("password", "", "password (prompted for when omitted)")

	usersCmd.AddCommand(usersAddCmd, usersListCmd, usersDeactivateCmd)
	rootCmd.AddCommand(usersCmd)
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	roleStr, _ := cmd.Flags().GetString("role")
	password, _ := cmd.Flags().GetString("password")

	if email == "" {
		return fmt.Errorf("--email is required")
	}
	if name == "" {
		return fmt.Errorf("--name is required")
	}

	role, err := access.ParseRole(roleStr)
	if err != nil {
		return err
	}

	if password == "" {
		prompt := promptui.Prompt{
			Label: "Password",
			Mask:  '*',
		}
		password, err = prompt.Run()
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	users := auth.NewStore(database)
	user, err := users.CreateUser(ctx, email, name, role, password)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	recorder := audit.NewRecorder(audit.NewStore(database), newLogger())
	recorder.UserCreated(ctx, cliActor, user.Email, user.Role)

	fmt.Printf("User %q created\n", user.Email)
	fmt.Printf("  Name: %s\n", user.Name)
	fmt.Printf("  Role: %s\n", user.Role)
	return nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	users, err := auth.NewStore(database).ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users yet. Create one with `finchat users add`.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tNAME\tROLE\tACTIVE\tCREATED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
			u.Email, u.Name, u.Role, u.Active, u.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()

	return nil
}

func runUsersDeactivate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	email := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	users := auth.NewStore(database)
	user, err := users.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", email, err)
	}
	if err := users.DeactivateUser(ctx, user.ID); err != nil {
		return fmt.Errorf("deactivating user: %w", err)
	}

	recorder := audit.NewRecorder(audit.NewStore(database), newLogger())
	recorder.UserDeactivated(ctx, cliActor, user.Email)

	fmt.Printf("User %q deactivated\n", user.Email)
	return nil
}
