package session

// Permission - device or filesystem capability the caller must hold before
// invoking permission-gated operations. The controller only declares
// requirements, it never enforces them.
type Permission string

const (
	PermissionCamera     Permission = "camera"
	PermissionMicrophone Permission = "microphone"
	PermissionStorage    Permission = "storage"
)

// RequiredPermissions is a pure function of the output kind: capture always
// needs camera and microphone access, writing a local file additionally
// needs storage access.
func RequiredPermissions(kind string) []Permission {
	perms := []Permission{PermissionCamera, PermissionMicrophone}
	if kind == KindFile {
		perms = append(perms, PermissionStorage)
	}
	return perms
}
