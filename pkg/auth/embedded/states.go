package embedded

import "github.com/DeBrosOfficial/snowball/pkg/rpc"

// State names.
const (
	StateInitializing           = "initializing"
	StateNoSession              = "no-session"
	StateWaitingForOtp          = "waiting-for-otp"
	StateAuthenticatedNoPasskey = "authenticated-no-passkey"
	StateWalletReady            = "wallet-ready"
)

// State is one of Initializing, NoSession, WaitingForOtp,
// AuthenticatedNoPasskey or WalletReady.
type State interface {
	Name() string
	isState()
}

type Initializing struct {
	User *rpc.User
}

type NoSession struct {
	User *rpc.User
}

type WaitingForOtp struct {
	OtpUUID string
	User    *rpc.User
}

type AuthenticatedNoPasskey struct {
	User rpc.User
}

type WalletReady struct {
	User rpc.User
}

func (Initializing) Name() string           { return StateInitializing }
func (NoSession) Name() string              { return StateNoSession }
func (WaitingForOtp) Name() string          { return StateWaitingForOtp }
func (AuthenticatedNoPasskey) Name() string { return StateAuthenticatedNoPasskey }
func (WalletReady) Name() string            { return StateWalletReady }

func (Initializing) isState()           {}
func (NoSession) isState()              {}
func (WaitingForOtp) isState()          {}
func (AuthenticatedNoPasskey) isState() {}
func (WalletReady) isState()            {}

// UserOf returns the user carried by s, or nil.
func UserOf(s State) *rpc.User {
	switch s := s.(type) {
	case Initializing:
		return s.User
	case NoSession:
		return s.User
	case WaitingForOtp:
		return s.User
	case AuthenticatedNoPasskey:
		return &s.User
	case WalletReady:
		return &s.User
	}
	return nil
}

// withUser returns s with its user replaced, keeping the variant.
func withUser(s State, u rpc.User) State {
	switch s := s.(type) {
	case Initializing:
		s.User = &u
		return s
	case NoSession:
		s.User = &u
		return s
	case WaitingForOtp:
		s.User = &u
		return s
	case AuthenticatedNoPasskey:
		s.User = u
		return s
	case WalletReady:
		s.User = u
		return s
	}
	return Initializing{User: &u}
}
