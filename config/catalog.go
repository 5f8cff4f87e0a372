package config

import (
	"fmt"
	"math"
	"os"

	"go-gin-lucky-draw/internal/model"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// 權重總和允許的誤差
const weightTolerance = 1e-6

type catalogFile struct {
	Prizes []model.PrizeDefinition `yaml:"prizes"`
}

// DefaultCatalog 活動預設獎品，各 100 份
func DefaultCatalog() []model.PrizeDefinition {
	return []model.PrizeDefinition{
		{ID: "v50", Name: "Voucher 50.000đ", Weight: 0.40, TotalStock: 100},
		{ID: "v100", Name: "Voucher 100.000đ", Weight: 0.25, TotalStock: 100},
		{ID: "v150", Name: "Voucher 150.000đ", Weight: 0.15, TotalStock: 100},
		{ID: "doudou", Name: "Thỏ Doudou Babybio", Weight: 0.10, TotalStock: 100},
		{ID: "bear", Name: "Gấu bông Babybio", Weight: 0.10, TotalStock: 100},
	}
}

// LoadCatalog 從 YAML 讀取獎品設定，path 為空時使用預設
func LoadCatalog(path string) ([]model.PrizeDefinition, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) ([]model.PrizeDefinition, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := ValidateCatalog(file.Prizes); err != nil {
		return nil, err
	}
	return file.Prizes, nil
}

// ValidateCatalog 權重需在 (0,1]、總和為 1、id 不可重複
func ValidateCatalog(defs []model.PrizeDefinition) error {
	if len(defs) == 0 {
		return fmt.Errorf("catalog is empty")
	}

	validate := validator.New()
	seen := make(map[string]struct{}, len(defs))
	sum := 0.0
	for _, def := range defs {
		if err := validate.Struct(def); err != nil {
			return fmt.Errorf("prize %q: %w", def.ID, err)
		}
		if _, ok := seen[def.ID]; ok {
			return fmt.Errorf("duplicate prize id %q", def.ID)
		}
		seen[def.ID] = struct{}{}
		sum += def.Weight
	}

	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("prize weights sum to %.6f, want 1", sum)
	}
	return nil
}
