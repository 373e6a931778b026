package config

const (
	defaultOutputDir           = "./outputs"
	defaultLogDir              = "~/.local/share/meshforge/logs"
	defaultLedgerPath          = "~/.local/share/meshforge/ledger.db"
	defaultSteps               = 30
	defaultGuidanceScale       = 7.5
	defaultSeed                = 1234
	defaultOctreeResolution    = 256
	defaultNumChunks           = 200000
	defaultInputSize           = 512
	defaultFormat              = "obj"
	defaultPreviewSize         = 512
	defaultMaxFaces            = 40000
	defaultMinComponentFaces   = 32
	defaultShapegenModel       = "tencent/Hunyuan3D-2mini"
	defaultShapegenSubfolder   = "hunyuan3d-dit-v2-mini-turbo"
	defaultTexgenModel         = "tencent/Hunyuan3D-2"
	defaultDevice              = "cuda"
	defaultMCAlgo              = "mc"
	defaultWorkers             = 1
	defaultShapeKind           = "relief"
	defaultShapeTimeoutSeconds = 900
	defaultBackgroundKind      = "border"
	defaultBackgroundTolerance = 48
	defaultTextToImageKind     = "imagen"
	defaultTextToImageModel    = "imagen-4.0-generate-001"
	defaultTextureKind         = "projection"
	defaultProbeTimeoutSeconds = 5
	defaultConvertTimeout      = 300
	defaultBlenderBinary       = "blender"
	defaultAssimpBinary        = "assimp"
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// DefaultBackends is the conversion backend priority order used when none is configured.
var DefaultBackends = []string{"native", "blender", "assimp", "cleanchain"}

// SupportedFormats lists the output formats accepted by output.format.
var SupportedFormats = []string{"obj", "glb", "ply", "stl", "fbx"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			LedgerPath: defaultLedgerPath,
		},
		Generation: Generation{
			Steps:            defaultSteps,
			GuidanceScale:    defaultGuidanceScale,
			Seed:             defaultSeed,
			OctreeResolution: defaultOctreeResolution,
			NumChunks:        defaultNumChunks,
			RemoveBackground: true,
			InputSize:        defaultInputSize,
		},
		Output: Output{
			Format:            defaultFormat,
			Texture:           true,
			Previews:          true,
			PreviewSize:       defaultPreviewSize,
			MaxFaces:          defaultMaxFaces,
			MinComponentFaces: defaultMinComponentFaces,
		},
		Models: Models{
			Shapegen:  defaultShapegenModel,
			Subfolder: defaultShapegenSubfolder,
			Texgen:    defaultTexgenModel,
		},
		Device: Device{
			Name:    defaultDevice,
			MCAlgo:  defaultMCAlgo,
			Workers: defaultWorkers,
		},
		Shape: Shape{
			Kind:           defaultShapeKind,
			TimeoutSeconds: defaultShapeTimeoutSeconds,
		},
		Background: Background{
			Kind:      defaultBackgroundKind,
			Tolerance: defaultBackgroundTolerance,
		},
		TextToImage: TextToImage{
			Kind:  defaultTextToImageKind,
			Model: defaultTextToImageModel,
		},
		Texture: Texture{
			Kind: defaultTextureKind,
		},
		Convert: Convert{
			Backends:            append([]string(nil), DefaultBackends...),
			ProbeTimeoutSeconds: defaultProbeTimeoutSeconds,
			TimeoutSeconds:      defaultConvertTimeout,
			BlenderBinary:       defaultBlenderBinary,
			AssimpBinary:        defaultAssimpBinary,
		},
		Metrics:       Metrics{Enabled: true},
		Notifications: Notifications{RequestTimeoutSeconds: defaultNotifyTimeout},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
