// Package neat implements the evolutionary core of NeuroEvolution of
// Augmenting Topologies (NEAT).
//
// NEAT is a genetic algorithm for the generation of evolving artificial neural networks.
// It alters both the weighting parameters and structures of networks, attempting to find
// a balance between the fitness of evolved solutions and their diversity.
//
// The package covers genomes and their mutations, the innovation registry
// that aligns genes across genomes, compatibility distance, speciation,
// stagnation, reproduction and checkpoints. Networks are built from genomes
// by package nn, and package evolve drives the generational loop.
//
// Basic usage:
//
//	// Load configuration
//	config, err := neat.LoadConfig("path/to/config.ini")
//	if err != nil {
//		log.Fatalf("Error loading config: %v", err)
//	}
//
//	// Evaluate phenotypes with your fitness function
//	scheduler, err := evolve.New(config, evolve.EvaluatorFunc(
//		func(ctx context.Context, net nn.Network) (float64, error) {
//			out, err := net.Compute([]float64{1, 0})
//			if err != nil {
//				return 0, err
//			}
//			return out[0], nil
//		}))
//	if err != nil {
//		log.Fatalf("Error creating scheduler: %v", err)
//	}
//
//	result, err := scheduler.Run(context.Background())
//	if err != nil {
//		log.Fatalf("Error running evolution: %v", err)
//	}
//	if result.Solved {
//		fmt.Println("Solution found!")
//	}
package neat
