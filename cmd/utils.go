package cmd

import (
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"photo-backend/internal/database"
	"photo-backend/internal/imaging"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

//go:embed presets.yaml
var builtinPresetsYaml []byte

type builtinPreset struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []imaging.Step `yaml:"steps"`
}

type builtinPresetsFile struct {
	Presets []builtinPreset `yaml:"presets"`
}

// SeedBuiltinPresets creates the shipped presets if they do not exist yet.
// Existing rows are left alone so operators can rename or retune them.
func SeedBuiltinPresets(db *gorm.DB) error {
	var file builtinPresetsFile
	if err := yaml.Unmarshal(builtinPresetsYaml, &file); err != nil {
		return fmt.Errorf("error parsing builtin presets: %w", err)
	}

	for _, p := range file.Presets {
		if err := imaging.ValidateSteps(p.Steps); err != nil {
			return fmt.Errorf("builtin preset '%s' has an invalid pipeline: %w", p.Name, err)
		}

		stepsJson, err := json.Marshal(p.Steps)
		if err != nil {
			return fmt.Errorf("error serializing builtin preset '%s': %w", p.Name, err)
		}

		var preset database.Preset
		if err := db.Where(database.Preset{Name: p.Name}).Attrs(database.Preset{
			Id:           uuid.New(),
			Description:  p.Description,
			Steps:        datatypes.JSON(stepsJson),
			Builtin:      true,
			CreationTime: time.Now().UTC(),
		}).FirstOrCreate(&preset).Error; err != nil {
			return fmt.Errorf("error creating builtin preset '%s': %w", p.Name, err)
		}
	}

	return nil
}
