// Package identity talks to the OAuth identity provider.
//
// Login is the standard authorization code flow: AuthCodeURL sends the
// browser to the provider, Exchange trades the returned code for an access
// token, and FetchProfile reads the user's id and username from
// {api_base_url}/users/@me. Transient profile failures (5xx, 429) are retried
// with jittered exponential backoff.
package identity
