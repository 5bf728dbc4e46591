package tuya

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// SignInput carries everything that contributes to a request signature.
// Sign is pure: identical inputs always produce identical signatures.
type SignInput struct {
	// Method is the HTTP method, upper case ("GET", "POST").
	Method string

	// Path is the URL path without query string (e.g. "/v1.0/devices/x/commands").
	Path string

	// Query holds the query parameters, if any. They are canonicalized by
	// sorting keys before signing.
	Query url.Values

	// Body is the JSON request body; nil for body-less requests.
	Body []byte

	// ClientID is the cloud project client id.
	ClientID string

	// Secret is the cloud project client secret (HMAC key).
	Secret string

	// AccessToken is the current access token, empty for the login call.
	AccessToken string

	// Nonce is the session correlation id sent in the nonce header.
	Nonce string

	// Timestamp is the request timestamp in milliseconds.
	Timestamp int64
}

// Sign computes the request signature per the platform's v2 signing scheme.
//
// The canonical string is:
//
//	METHOD\n
//	sha256(body)\n      (lowercase hex; hash of "" when body is absent)
//	client_id:<id>\n
//	\n
//	path[?k=v&k=v...]   (query sorted by key)
//
// The signature is HMAC-SHA256 over
// clientID + accessToken + timestamp + nonce + canonical, keyed by the
// client secret, upper-case hex encoded.
func Sign(in SignInput) string {
	canonical := canonicalString(in.Method, in.Path, in.Query, in.Body, in.ClientID)

	msg := in.ClientID + in.AccessToken + strconv.FormatInt(in.Timestamp, 10) + in.Nonce + canonical

	mac := hmac.New(sha256.New, []byte(in.Secret))
	mac.Write([]byte(msg))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// canonicalString builds the string-to-sign for a request.
func canonicalString(method, path string, query url.Values, body []byte, clientID string) string {
	bodyHash := sha256.Sum256(body)

	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteString("\n")
	b.WriteString(hex.EncodeToString(bodyHash[:]))
	b.WriteString("\n")
	b.WriteString("client_id:")
	b.WriteString(clientID)
	b.WriteString("\n")
	b.WriteString("\n")
	b.WriteString(path)
	b.WriteString(encodeSortedQuery(query))

	return b.String()
}

// encodeSortedQuery renders query parameters sorted by key, prefixed with
// "?". Returns empty string when there are no parameters.
func encodeSortedQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("?")
	for i, k := range keys {
		if i > 0 {
			b.WriteString("&")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(query.Get(k))
	}
	return b.String()
}
