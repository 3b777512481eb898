package neat

import (
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// CheckpointVersion is the version written by this package. Checkpoints with
// any other version are rejected.
const CheckpointVersion = 1

// ErrCheckpointVersion is returned when decoding a checkpoint of an unsupported version.
var ErrCheckpointVersion = errors.New("unsupported checkpoint version")

// GenomeRecord is the serialized form of a genome.
type GenomeRecord struct {
	ID              int
	Fitness         float64
	AdjustedFitness float64
	Evaluated       bool
	SpeciesID       int
	Nodes           []NodeGene
	Connections     []ConnectionGene
}

// SpeciesRecord is the serialized form of a species.
type SpeciesRecord struct {
	ID                          int
	Created                     int
	LastImproved                int
	BestFitnessEver             float64
	GenerationsSinceImprovement int
	Representative              GenomeRecord
	Members                     []int
}

// Checkpoint captures everything needed to resume a run at a generation
// boundary. The Config is not part of it and must be supplied on restore.
type Checkpoint struct {
	Version       int
	RunID         uuid.UUID
	Seed          int64
	Generation    int
	NextGenomeID  int
	NextSpeciesID int
	Innovation    InnovationSnapshot
	Genomes       []GenomeRecord
	Species       []SpeciesRecord
	Best          *GenomeRecord
	SavedAt       time.Time
}

// NewGenomeRecord converts a genome to its serialized form.
func NewGenomeRecord(g *Genome) GenomeRecord {
	r := GenomeRecord{
		ID:              g.ID,
		Fitness:         g.Fitness,
		AdjustedFitness: g.AdjustedFitness,
		Evaluated:       g.Evaluated,
		SpeciesID:       g.SpeciesID,
		Nodes:           make([]NodeGene, len(g.Nodes)),
		Connections:     make([]ConnectionGene, len(g.Connections)),
	}
	for i, n := range g.Nodes {
		r.Nodes[i] = *n
	}
	for i, c := range g.Connections {
		r.Connections[i] = *c
	}
	return r
}

// Genome rebuilds the genome and links it to config.
func (r GenomeRecord) Genome(config *GenomeConfig) (*Genome, error) {
	g := NewGenome(r.ID, config)
	g.Fitness = r.Fitness
	g.AdjustedFitness = r.AdjustedFitness
	g.Evaluated = r.Evaluated
	g.SpeciesID = r.SpeciesID
	for i := range r.Nodes {
		n := r.Nodes[i]
		if !g.AddNode(&n) {
			return nil, fmt.Errorf("genome %d: duplicate node %d", r.ID, n.ID)
		}
	}
	for i := range r.Connections {
		c := r.Connections[i]
		if err := g.AddConnection(&c); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Checkpoint captures the population at its current generation.
func (p *Population) Checkpoint() *Checkpoint {
	cp := &Checkpoint{
		Version:       CheckpointVersion,
		RunID:         p.RunID,
		Seed:          p.Config.Neat.Seed,
		Generation:    p.Generation,
		NextGenomeID:  p.NextGenomeID,
		NextSpeciesID: p.SpeciesSet.NextID,
		Innovation:    p.Registry.Snapshot(),
		Genomes:       make([]GenomeRecord, len(p.Genomes)),
		Species:       make([]SpeciesRecord, len(p.SpeciesSet.Species)),
		SavedAt:       time.Now().UTC(),
	}
	for i, g := range p.Genomes {
		cp.Genomes[i] = NewGenomeRecord(g)
	}
	for i, s := range p.SpeciesSet.Species {
		members := make([]int, len(s.Members))
		for j, m := range s.Members {
			members[j] = m.ID
		}
		cp.Species[i] = SpeciesRecord{
			ID:                          s.ID,
			Created:                     s.Created,
			LastImproved:                s.LastImproved,
			BestFitnessEver:             s.BestFitnessEver,
			GenerationsSinceImprovement: s.GenerationsSinceImprovement,
			Representative:              NewGenomeRecord(s.Representative),
			Members:                     members,
		}
	}
	if p.BestGenome != nil {
		best := NewGenomeRecord(p.BestGenome)
		cp.Best = &best
	}
	return cp
}

// RestorePopulation rebuilds a population from a checkpoint. The checkpoint's
// seed replaces config.Neat.Seed so that the resumed run continues the same
// random sequence.
func RestorePopulation(config *Config, cp *Checkpoint, logger *slog.Logger) (*Population, error) {
	if cp.Version != CheckpointVersion {
		return nil, fmt.Errorf("%w: %d", ErrCheckpointVersion, cp.Version)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	config.Neat.Seed = cp.Seed

	p := &Population{
		RunID:        cp.RunID,
		Config:       config,
		Generation:   cp.Generation,
		Genomes:      make([]*Genome, 0, len(cp.Genomes)),
		SpeciesSet:   NewSpeciesSet(config, logger),
		Registry:     RestoreInnovationRegistry(cp.Innovation),
		NextGenomeID: cp.NextGenomeID,
		Logger:       logger,
	}
	p.SpeciesSet.NextID = cp.NextSpeciesID

	for _, rec := range cp.Genomes {
		g, err := rec.Genome(&config.Genome)
		if err != nil {
			return nil, fmt.Errorf("failed to restore checkpoint: %w", err)
		}
		p.Genomes = append(p.Genomes, g)
	}
	for _, rec := range cp.Species {
		rep, err := rec.Representative.Genome(&config.Genome)
		if err != nil {
			return nil, fmt.Errorf("failed to restore species %d: %w", rec.ID, err)
		}
		s := &Species{
			ID:                          rec.ID,
			Created:                     rec.Created,
			LastImproved:                rec.LastImproved,
			Representative:              rep,
			BestFitnessEver:             rec.BestFitnessEver,
			GenerationsSinceImprovement: rec.GenerationsSinceImprovement,
		}
		for _, id := range rec.Members {
			if g, ok := p.Genome(id); ok {
				s.Members = append(s.Members, g)
			}
		}
		p.SpeciesSet.Species = append(p.SpeciesSet.Species, s)
	}
	if cp.Best != nil {
		best, err := cp.Best.Genome(&config.Genome)
		if err != nil {
			return nil, fmt.Errorf("failed to restore best genome: %w", err)
		}
		p.BestGenome = best
	}
	return p, nil
}

// Encode writes the checkpoint as gzip-compressed gob.
func (cp *Checkpoint) Encode(w io.Writer) error {
	gzWriter := gzip.NewWriter(w)
	if err := gob.NewEncoder(gzWriter).Encode(cp); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush checkpoint: %w", err)
	}
	return nil
}

// DecodeCheckpoint reads a checkpoint written by Encode.
func DecodeCheckpoint(r io.Reader) (*Checkpoint, error) {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader for checkpoint: %w", err)
	}
	defer gzReader.Close()

	var cp Checkpoint
	if err := gob.NewDecoder(gzReader).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Version != CheckpointVersion {
		return nil, fmt.Errorf("%w: %d", ErrCheckpointVersion, cp.Version)
	}
	return &cp, nil
}

// SaveCheckpoint writes the checkpoint to a file.
func SaveCheckpoint(filePath string, cp *Checkpoint) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file '%s': %w", filePath, err)
	}
	if err := cp.Encode(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// LoadCheckpoint reads a checkpoint from a file.
func LoadCheckpoint(filePath string) (*Checkpoint, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file '%s': %w", filePath, err)
	}
	defer file.Close()
	return DecodeCheckpoint(file)
}
