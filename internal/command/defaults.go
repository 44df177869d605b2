package command

// Version is the server version reported by the Version command. It is set at
// build time with -ldflags "-X github.com/plus-control/plusd/internal/command.Version=...".
var Version = "dev"

// RegisterDefaults registers the built-in command set.
func RegisterDefaults(r *Registry) error {
	for _, prototype := range []Command{
		&GetCommand{},
		&StealthLinkCommand{},
		&VersionCommand{},
		&RequestDeviceIDsCommand{},
		&SendTextCommand{},
		&GetImageCommand{},
	} {
		if err := r.Register(prototype); err != nil {
			return err
		}
	}
	return nil
}
