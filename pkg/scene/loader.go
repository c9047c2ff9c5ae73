package scene

import (
	"fmt"
	"math"
	"os"

	"github.com/fogleman/pt/pt"
	"gopkg.in/yaml.v3"
)

// triple is a 3-component yaml value used for vectors and colors
type triple [3]float64

func (t triple) vector() pt.Vector {
	return pt.Vector{X: t[0], Y: t[1], Z: t[2]}
}

type fileMaterial struct {
	Type  string  `yaml:"type"`
	Kd    triple  `yaml:"kd"`
	Ks    triple  `yaml:"ks"`
	Alpha float64 `yaml:"alpha"`
}

type fileBox struct {
	Min triple `yaml:"min"`
	Max triple `yaml:"max"`
}

type fileMesh struct {
	Name     string       `yaml:"name"`
	OBJ      string       `yaml:"obj"`
	Box      *fileBox     `yaml:"box"`
	Material fileMaterial `yaml:"material"`
}

type fileRotate struct {
	Axis    triple  `yaml:"axis"`
	Degrees float64 `yaml:"degrees"`
}

type fileInstance struct {
	Mesh      string      `yaml:"mesh"`
	Translate triple      `yaml:"translate"`
	Rotate    *fileRotate `yaml:"rotate"`
	Scale     *triple     `yaml:"scale"`
}

type fileLight struct {
	Type     string `yaml:"type"`
	Position triple `yaml:"position"`
	Color    triple `yaml:"color"`
}

type fileCamera struct {
	Eye    triple  `yaml:"eye"`
	LookAt triple  `yaml:"lookat"`
	Up     triple  `yaml:"up"`
	FOV    float64 `yaml:"fov"`
}

type fileFilm struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type fileScene struct {
	Film      fileFilm       `yaml:"film"`
	Camera    fileCamera     `yaml:"camera"`
	Lights    []fileLight    `yaml:"lights"`
	Meshes    []fileMesh     `yaml:"meshes"`
	Instances []fileInstance `yaml:"instances"`
}

// LoadFile reads a YAML scene description. Any inconsistency (missing mesh
// reference, unknown material or light type, empty film) is reported here,
// before tracing begins.
func LoadFile(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene: %w", err)
	}
	var fs fileScene
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parsing scene: %w", err)
	}
	return buildScene(&fs)
}

func buildScene(fs *fileScene) (*Scene, error) {
	if fs.Film.Width <= 0 || fs.Film.Height <= 0 {
		return nil, fmt.Errorf("scene film is %dx%d, want positive dimensions", fs.Film.Width, fs.Film.Height)
	}
	if len(fs.Meshes) == 0 {
		return nil, fmt.Errorf("scene has no meshes")
	}

	s := &Scene{
		Film: Film{Width: fs.Film.Width, Height: fs.Film.Height},
		Camera: Camera{
			Eye:    fs.Camera.Eye.vector(),
			LookAt: fs.Camera.LookAt.vector(),
			Up:     fs.Camera.Up.vector(),
			FOV:    fs.Camera.FOV * math.Pi / 180,
		},
	}
	if s.Camera.Up.Length() == 0 {
		s.Camera.Up = pt.Vector{Y: 1}
	}
	if s.Camera.FOV == 0 {
		s.Camera.FOV = math.Pi / 3
	}

	for _, fl := range fs.Lights {
		switch fl.Type {
		case "point":
			s.Lights = append(s.Lights, NewPointLight(fl.Position.vector(), fl.Color.vector()))
		case "ambient":
			s.Lights = append(s.Lights, NewAmbientLight(fl.Color.vector()))
		default:
			return nil, fmt.Errorf("light %q: unknown type", fl.Type)
		}
	}

	byName := make(map[string]*Mesh, len(fs.Meshes))
	for i, fm := range fs.Meshes {
		mesh, err := buildMesh(i, fm)
		if err != nil {
			return nil, err
		}
		if _, dup := byName[mesh.Name]; dup {
			return nil, fmt.Errorf("mesh %q: duplicate name", mesh.Name)
		}
		byName[mesh.Name] = mesh
		s.Meshes = append(s.Meshes, mesh)
	}

	for i, fi := range fs.Instances {
		mesh, ok := byName[fi.Mesh]
		if !ok {
			return nil, fmt.Errorf("instance %d: unknown mesh %q", i, fi.Mesh)
		}
		m := Translate(fi.Translate.vector())
		if fi.Rotate != nil {
			m = m.Mul(Rotate(fi.Rotate.Axis.vector(), fi.Rotate.Degrees*math.Pi/180))
		}
		if fi.Scale != nil {
			m = m.Mul(Scale(fi.Scale.vector()))
		}
		inst, err := NewInstance(i, mesh, m)
		if err != nil {
			return nil, err
		}
		s.Instances = append(s.Instances, inst)
	}
	if len(s.Instances) == 0 {
		return nil, fmt.Errorf("scene has no instances")
	}
	return s, nil
}

func buildMesh(index int, fm fileMesh) (*Mesh, error) {
	material, err := parseMaterial(fm.Material)
	if err != nil {
		return nil, fmt.Errorf("mesh %q: %w", fm.Name, err)
	}
	mesh := &Mesh{Name: fm.Name, Material: material, DataIndex: index}
	switch {
	case fm.OBJ != "":
		geometry, err := pt.LoadOBJ(fm.OBJ, pt.Material{})
		if err != nil {
			return nil, fmt.Errorf("mesh %q: loading %s: %w", fm.Name, fm.OBJ, err)
		}
		mesh.Geometry = geometry
	case fm.Box != nil:
		mesh.Geometry = BoxGeometry(fm.Box.Min.vector(), fm.Box.Max.vector())
	default:
		return nil, fmt.Errorf("mesh %q: needs either obj or box geometry", fm.Name)
	}
	if len(mesh.Geometry.Triangles) == 0 {
		return nil, fmt.Errorf("mesh %q: empty geometry", fm.Name)
	}
	return mesh, nil
}

func parseMaterial(fm fileMaterial) (Material, error) {
	kd := fm.Kd.vector()
	ks := fm.Ks.vector()
	switch fm.Type {
	case "", "lambert":
		return NewLambert(kd), nil
	case "phong":
		return NewPhong(kd, ks, fm.Alpha), nil
	case "blinnphong":
		return NewBlinnPhong(kd, ks, fm.Alpha), nil
	case "obj":
		return Material{Kind: WavefrontObj, Kd: kd, Ks: ks, Alpha: fm.Alpha}, nil
	default:
		return Material{}, fmt.Errorf("unknown material type %q", fm.Type)
	}
}

// BoxGeometry builds an axis-aligned box out of twelve triangles. Scenes
// without external OBJ assets (and the test suite) use it as primitive
// geometry.
func BoxGeometry(min, max pt.Vector) *pt.Mesh {
	v := [8]pt.Vector{
		{X: min.X, Y: min.Y, Z: min.Z},
		{X: max.X, Y: min.Y, Z: min.Z},
		{X: max.X, Y: max.Y, Z: min.Z},
		{X: min.X, Y: max.Y, Z: min.Z},
		{X: min.X, Y: min.Y, Z: max.Z},
		{X: max.X, Y: min.Y, Z: max.Z},
		{X: max.X, Y: max.Y, Z: max.Z},
		{X: min.X, Y: max.Y, Z: max.Z},
	}
	faces := [12][3]int{
		{0, 2, 1}, {0, 3, 2}, // -z
		{4, 5, 6}, {4, 6, 7}, // +z
		{0, 1, 5}, {0, 5, 4}, // -y
		{3, 6, 2}, {3, 7, 6}, // +y
		{0, 7, 3}, {0, 4, 7}, // -x
		{1, 2, 6}, {1, 6, 5}, // +x
	}
	triangles := make([]*pt.Triangle, 0, len(faces))
	for _, f := range faces {
		triangles = append(triangles, pt.NewTriangle(
			v[f[0]], v[f[1]], v[f[2]],
			pt.Vector{}, pt.Vector{}, pt.Vector{},
			pt.Material{},
		))
	}
	return pt.NewMesh(triangles)
}
