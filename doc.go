// Package session provides the authentication and business-membership
// state machine for multi-business apps, plus the persistence, token and
// HTTP plumbing around it.
//
// Session lifecycle:
//   - SessionStateMachine holds the single SessionState snapshot the UI
//     consumes: who is signed in, which businesses they can reach and
//     which one is active. Operations replace the snapshot wholesale and
//     notify subscribers; authentication failures degrade to state, they
//     never surface as Go errors.
//   - The membership count drives the flow everywhere: zero businesses
//     parks the identity on onboarding, exactly one auto-selects it with
//     a real role lookup, several demand an explicit selection.
//
// Identity providers:
//   - CredentialProvider implements IdentityProvider over the bun backed
//     repositories: password login with attempt throttling, signup with
//     optional initial business, session restore from a TokenStore, and
//     OAuth flows through the oauth subpackage (Apple, Google).
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the state
//     machine and the membership commands. Sinks run best-effort (errors
//     are logged) so you can forward to a database or queue without
//     blocking authentication.
package session
