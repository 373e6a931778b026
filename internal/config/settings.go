package config

// Settings is the run configuration echo persisted in batch_summary.json and
// the run ledger.
type Settings struct {
	OutputDir        string  `json:"output_dir"`
	Format           string  `json:"format"`
	Steps            int     `json:"steps"`
	GuidanceScale    float64 `json:"guidance_scale"`
	Seed             int64   `json:"seed"`
	OctreeResolution int     `json:"octree_resolution"`
	NumChunks        int     `json:"num_chunks"`
	RemoveBackground bool    `json:"remove_background"`
	Texture          bool    `json:"texture"`
	Previews         bool    `json:"previews"`
	MaxFaces         int     `json:"max_faces"`
	Device           string  `json:"device"`
	LowVRAM          bool    `json:"low_vram"`
	EnableFlashVDM   bool    `json:"enable_flashvdm"`
	Compile          bool    `json:"compile"`
	MCAlgo           string  `json:"mc_algo"`
	Workers          int     `json:"workers"`
	Shapegen         string  `json:"shapegen_model"`
	Texgen           string  `json:"texgen_model"`
	ShapeKind        string  `json:"shape_capability"`
}

// Settings returns the echo of the options that shape a run's output.
func (c *Config) Settings() Settings {
	return Settings{
		OutputDir:        c.Paths.OutputDir,
		Format:           c.Output.Format,
		Steps:            c.Generation.Steps,
		GuidanceScale:    c.Generation.GuidanceScale,
		Seed:             c.Generation.Seed,
		OctreeResolution: c.Generation.OctreeResolution,
		NumChunks:        c.Generation.NumChunks,
		RemoveBackground: c.Generation.RemoveBackground,
		Texture:          c.Output.Texture,
		Previews:         c.Output.Previews,
		MaxFaces:         c.Output.MaxFaces,
		Device:           c.Device.Name,
		LowVRAM:          c.Device.LowVRAM,
		EnableFlashVDM:   c.Device.EnableFlashVDM,
		Compile:          c.Device.Compile,
		MCAlgo:           c.Device.MCAlgo,
		Workers:          c.Device.Workers,
		Shapegen:         c.Models.Shapegen,
		Texgen:           c.TexgenModel(),
		ShapeKind:        c.Shape.Kind,
	}
}
