package common

// AccessTokenHeaderName is the HTTP header carrying the bearer access token.
const AccessTokenHeaderName = "Authorization"

// RememberCookieName is the cookie that carries "<userID>:<rememberToken>".
const RememberCookieName = "remember_token"
