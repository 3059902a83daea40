package consts

const (
	PlatformSessionKey = "platform:session:"
)

const (
	PostDispatchLock = "lock:post:dispatch:"
)
