package build

// Stage names recorded on produced artifacts.
const (
	StageDependencies = "dependencies"
	StageApplication  = "application"
	StageExternal     = "external"
)

// A binary output of one pipeline stage. Immutable once produced.
type Artifact struct {
	Name     string   // Artifact name, referenced by image copy entries.
	Stage    string   // Producing stage.
	Path     string   // Absolute path of the payload on the host.
	Profile  string   // Build profile the artifact was compiled under.
	Features []string // Feature flags enabled for the build.
}
