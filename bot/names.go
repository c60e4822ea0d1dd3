package bot

import "math/rand"

// names is the pool bots draw nicknames from. Everything here fits the
// server's 10-byte nickname cap without escaping.
var names = []string{
	"Viper", "Cobra", "Mamba", "Python", "Anaconda",
	"Sidewinder", "Phantom", "Shadow", "Blaze", "Frostbite",
	"Venom", "Reaper", "Striker", "Apex", "Cyclone",
	"Tempest", "Havoc", "Wraith", "Spectre", "Adder",
}

// PickName returns a random bot nickname.
func PickName(rng *rand.Rand) string {
	return names[rng.Intn(len(names))]
}
