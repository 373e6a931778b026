package pipeline

// StatsFileName is the per-item record whose presence marks a completed item.
const StatsFileName = "stats.json"

// Stats is the content of stats.json.
type Stats struct {
	Model            ModelInfo          `json:"model"`
	Params           Params             `json:"params"`
	NumberOfFaces    int                `json:"number_of_faces"`
	NumberOfVertices int                `json:"number_of_vertices"`
	Time             map[string]float64 `json:"time"`
	Outputs          Outputs            `json:"outputs"`
}

// ModelInfo names the models used for the item.
type ModelInfo struct {
	Shapegen  string `json:"shapegen"`
	Subfolder string `json:"subfolder,omitempty"`
	Texgen    string `json:"texgen"`
}

// Params echoes the generation parameters.
type Params struct {
	Caption          *string `json:"caption"`
	Steps            int     `json:"steps"`
	GuidanceScale    float64 `json:"guidance_scale"`
	Seed             int64   `json:"seed"`
	OctreeResolution int     `json:"octree_resolution"`
	CheckBoxRembg    bool    `json:"check_box_rembg"`
	NumChunks        int     `json:"num_chunks"`
	RemovedBG        bool    `json:"background_removed"`
}

// Outputs lists the files written for the item, relative to its folder.
type Outputs struct {
	Format       string   `json:"format"`
	Input        string   `json:"input"`
	Rembg        string   `json:"rembg,omitempty"`
	RawMesh      string   `json:"raw_mesh"`
	WhiteMesh    string   `json:"white_mesh"`
	TexturedMesh string   `json:"textured_mesh,omitempty"`
	Previews     []string `json:"previews,omitempty"`
	Degraded     bool     `json:"degraded"`
	Diagnostics  []string `json:"diagnostics,omitempty"`
}

// Files returns every output file name in write order.
func (o Outputs) Files() []string {
	var files []string
	for _, name := range []string{o.Input, o.Rembg, o.RawMesh, o.WhiteMesh, o.TexturedMesh} {
		if name != "" {
			files = append(files, name)
		}
	}
	return append(files, o.Previews...)
}
