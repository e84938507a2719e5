// Package deviceflow implements the OAuth 2.0 device authorization grant
// against GitHub to obtain the long-lived credential the Copilot API is
// unlocked with.
//
// # Flow
//
//	auth := deviceflow.NewAuthorizer(deviceflow.Endpoint, deviceflow.ClientID)
//	code, err := auth.RequestCode(ctx)
//	// Show code.UserCode and code.VerificationURI to the user
//	poller := deviceflow.NewPoller(transport, deviceflow.Endpoint.TokenURL, deviceflow.ClientID)
//	token, err := poller.Poll(ctx, code)
//
// # Polling
//
// Poll blocks for the whole session. The attempt budget is fixed up front as
// ceil(expires_in / (interval+1)); "slow_down" responses lengthen the sleeps
// that follow but do not change the budget. "access_denied", "expired_token"
// and unknown OAuth error codes end the session immediately, while pending
// responses and transport failures are absorbed and polling continues.
package deviceflow
