package common

// AccessTokenHeaderName is the HTTP/websocket header key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "Authorization"
