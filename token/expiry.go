package token

import "time"

// FallbackExpireTime is the assumed token lifetime in seconds when the
// provider declares none and no ID token exp claim is available.
const FallbackExpireTime = 600

// ExpiryBuffer is the window before the actual expiry instant within
// which a token is already treated as expired, so a refresh happens
// ahead of the token being rejected by resource servers.
const ExpiryBuffer = 120 * time.Second

// EpochAtSecondsFromNow returns the absolute epoch-seconds instant that
// lies secondsFromNow ahead of now.
func EpochAtSecondsFromNow(secondsFromNow int64, now time.Time) int64 {
	return now.Unix() + secondsFromNow
}

// EpochTimeIsPast reports whether the given epoch-seconds instant has
// passed, counting anything within ExpiryBuffer of now as past. The
// boundary is inclusive: an instant exactly ExpiryBuffer ahead of now
// is considered past.
func EpochTimeIsPast(timestamp int64, now time.Time) bool {
	return now.Unix()+int64(ExpiryBuffer/time.Second) >= timestamp
}

// RefreshExpiresIn resolves the refresh token lifetime in seconds from
// a token response. Explicit provider fields win, checked in a fixed
// priority order across known provider conventions. Without one, a
// present refresh token is assumed to outlive the access token by the
// fallback buffer; with no refresh token at all the access lifetime is
// used as-is.
func RefreshExpiresIn(tokenExpiresIn int64, resp *Response) int64 {
	if resp.RefreshExpiresIn != nil {
		return *resp.RefreshExpiresIn
	}
	if resp.RefreshTokenExpiresIn != nil {
		return *resp.RefreshTokenExpiresIn
	}
	if resp.RefreshToken != nil {
		return tokenExpiresIn + FallbackExpireTime
	}
	return tokenExpiresIn
}
