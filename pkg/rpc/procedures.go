package rpc

// Procedure names a remote procedure and the credential it needs.
type Procedure struct {
	Name            string
	RequiresSession bool
}

// Backend procedures.
var (
	ProcSendOtp         = Procedure{Name: "sendOtp"}
	ProcVerifyOtp       = Procedure{Name: "verifyOtp"}
	ProcLoginPasskey    = Procedure{Name: "loginPasskey"}
	ProcGetAuthConfig   = Procedure{Name: "getAuthConfig"}
	ProcWhoami          = Procedure{Name: "pu_whoami", RequiresSession: true}
	ProcConnectPasskey  = Procedure{Name: "pu_connectPasskey", RequiresSession: true}
	ProcGetWalletConfig = Procedure{Name: "pu_getWalletConfig", RequiresSession: true}
)

// Procedures lists every known procedure.
var Procedures = []Procedure{
	ProcSendOtp,
	ProcVerifyOtp,
	ProcLoginPasskey,
	ProcGetAuthConfig,
	ProcWhoami,
	ProcConnectPasskey,
	ProcGetWalletConfig,
}

func (p Procedure) credentialKind() string {
	if p.RequiresSession {
		return "session"
	}
	return "apiKey"
}
