package constants

const (
	AppName          = "quantum-dapp"
	PreferencesFile  = "preferences.json"
	RelaySessionFile = "relay_session.json"
	AssetsFile       = "assets.json"

	SchemaV1      = 1
	FilePerm      = 0o600
	DirectoryPerm = 0o700

	NativeAddr = "0x0000000000000000000000000000000000000000"

	// Key under which the preferred wallet transport is stored.
	PreferredTransportKey = "preferred-transport"
)
