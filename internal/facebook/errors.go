package facebook

import "errors"

// ErrNoSource is returned when an upload request carries no byte source.
var ErrNoSource = errors.New("no video source")

// ErrInvalidSchedule is returned when the scheduled publish time is not far
// enough in the future.
var ErrInvalidSchedule = errors.New("invalid scheduled publish time")

// ErrSessionStart is returned when the start phase fails or the response is
// missing the session or video id.
var ErrSessionStart = errors.New("upload session start failed")

// ErrTransfer is returned when a chunk transfer is rejected by the remote.
var ErrTransfer = errors.New("chunk transfer failed")

// ErrFinish is returned when the finish phase fails.
var ErrFinish = errors.New("upload finish failed")

// ErrTruncatedSource is returned when the source runs out of bytes before the
// declared size has been transferred.
var ErrTruncatedSource = errors.New("video source truncated")

// ErrTokenExchange is returned when the token exchange response carries no
// access token.
var ErrTokenExchange = errors.New("token exchange failed")
