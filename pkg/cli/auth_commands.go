package cli

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	sberrors "github.com/DeBrosOfficial/snowball/pkg/errors"
	"github.com/DeBrosOfficial/snowball/pkg/rpc"
)

// ErrNotAuthenticated is returned by commands that need a stored session.
var ErrNotAuthenticated = sberrors.Make("cli.notAuthenticated", "Not authenticated - run 'snowball auth login' first",
	sberrors.ErrNoSession).WithCode(sberrors.CodePrecondition)

// HandleAuthCommand handles authentication commands
func HandleAuthCommand(env *Env, args []string) error {
	if len(args) == 0 {
		showAuthHelp(env)
		return nil
	}

	subcommand := args[0]
	switch subcommand {
	case "login":
		return handleAuthLogin(env, args[1:])
	case "logout":
		return handleAuthLogout(env)
	case "whoami":
		return handleAuthWhoami(env)
	case "status":
		return handleAuthStatus(env)
	case "help":
		showAuthHelp(env)
		return nil
	default:
		showAuthHelp(env)
		return fmt.Errorf("unknown auth command: %s", subcommand)
	}
}

func showAuthHelp(env *Env) {
	env.printf("🔐 Authentication Commands\n\n")
	env.printf("Usage: snowball auth <subcommand>\n\n")
	env.printf("Subcommands:\n")
	env.printf("  login [email]  - Sign in with a one-time code sent by email\n")
	env.printf("  logout         - Clear the stored session\n")
	env.printf("  whoami         - Show the signed in user\n")
	env.printf("  status         - Show backend and session details\n\n")
	env.printf("Environment Variables:\n")
	env.printf("  %s - Publishable API key\n", "SNOWBALL_API_KEY")
	env.printf("  %s - Backend URL\n\n", "SNOWBALL_API_URL")
}

func handleAuthLogin(env *Env, args []string) error {
	ctx, cancel := env.context()
	defer cancel()

	s, err := env.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	reader := bufio.NewReader(env.In)
	email := ""
	if len(args) > 0 {
		email = strings.TrimSpace(args[0])
	}
	if email == "" {
		env.printf("Email: ")
		email = readLine(reader)
	}
	if email == "" {
		return fmt.Errorf("email is required")
	}

	sent := s.RPC().SendOtp(ctx, email)
	if !sent.IsOk() {
		return sent.Failure()
	}
	env.printf("📧 Code sent to %s\n", email)
	env.printf("Code: ")
	code := readLine(reader)
	if code == "" {
		return fmt.Errorf("code is required")
	}

	login := s.RPC().VerifyOtp(ctx, code, sent.Value().UUID)
	if !login.IsOk() {
		return login.Failure()
	}
	user := login.Value().User

	if env.Format == "json" {
		return env.printJSON(user)
	}
	env.printf("✅ Authentication successful!\n")
	printUser(env, &user, s.RPC().SessionExpirationTime())
	return nil
}

func handleAuthLogout(env *Env) error {
	ctx, cancel := env.context()
	defer cancel()

	s, err := env.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	s.RPC().Logout()
	env.printf("✅ Logged out successfully - the stored session has been cleared\n")
	return nil
}

func handleAuthWhoami(env *Env) error {
	ctx, cancel := env.context()
	defer cancel()

	s, err := env.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.RPC().HasValidSession() {
		return ErrNotAuthenticated
	}
	res := s.RPC().Whoami(ctx)
	if !res.IsOk() {
		return res.Failure()
	}
	user := res.Value()

	if env.Format == "json" {
		return env.printJSON(user)
	}
	env.printf("✅ Authenticated\n")
	printUser(env, &user, s.RPC().SessionExpirationTime())
	return nil
}

func handleAuthStatus(env *Env) error {
	ctx, cancel := env.context()
	defer cancel()

	s, err := env.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	env.printf("🔐 Authentication Status\n")
	env.printf("  API URL:    %s\n", s.RPC().APIURL())
	env.printf("  Chain:      %s (%d)\n", s.Chain().Name, s.Chain().ChainID)

	exp := s.RPC().SessionExpirationTime()
	switch {
	case exp == 0:
		env.printf("  Status:     ❌ Not authenticated\n")
	case !s.RPC().HasValidSession():
		env.printf("  Status:     ⚠️  Session expired\n")
		env.printf("  Expired At: %s\n", formatMillis(exp))
	default:
		env.printf("  Status:     ✅ Authenticated\n")
		env.printf("  Expires:    %s\n", formatMillis(exp))
	}
	return nil
}

func printUser(env *Env, user *rpc.User, expiresAt int64) {
	env.printf("  User:      %s\n", user.UID)
	if email, ok := user.Email(); ok {
		env.printf("  Email:     %s\n", email)
	}
	for _, addr := range user.Addresses() {
		env.printf("  Wallet:    %s\n", addr.Hex())
	}
	env.printf("  Passkeys:  %d\n", len(user.Passkeys))
	if expiresAt > 0 {
		env.printf("  Expires:   %s\n", formatMillis(expiresAt))
	}
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
}

func readLine(r *bufio.Reader) string {
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}
