package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

const defaultCellPixels = 32

type Config struct {
	DBPath        string
	RunID         string // Latest run when empty
	OutputFile    string
	CellPixels    int
	List          bool
	NoAnnotations bool
}

func NewConfig() *Config {
	return &Config{
		CellPixels: defaultCellPixels,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	flag.StringVar(&c.DBPath, "db", "", "Path to the flight journal")
	flag.StringVar(&c.RunID, "r", "", "Run ID, defaults to the latest run")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	flag.IntVar(&c.CellPixels, "cell", defaultCellPixels, "Size of one grid cell in pixels")
	flag.BoolVar(&c.List, "list", false, "List the runs in the journal and exit")
	flag.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as grid scales and the info bar")
	flag.Parse()

	if err := c.Validate(); err != nil {
		flag.Usage()
		return nil, err
	}

	if !c.List && !strings.HasSuffix(c.OutputFile, ".png") {
		c.OutputFile = fmt.Sprintf("%s.png", c.OutputFile)
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch {
	case c.DBPath == "":
		return errors.New("db path is required")
	case c.List:
		return nil
	case c.OutputFile == "":
		return errors.New("output file is required")
	case c.CellPixels < 4:
		return fmt.Errorf("cell size must be at least 4 pixels, got %d", c.CellPixels)
	}
	return nil
}
