package platform

// DefaultPlatforms returns the shipped platform keyword list. Ride-share and
// delivery platforms come before marketplaces so that descriptions such as
// "UBER EATS" resolve to Uber rather than a generic food keyword.
func DefaultPlatforms() []Platform {
	return []Platform{
		{Name: "Uber", Keywords: []string{"uber"}},
		{Name: "Lyft", Keywords: []string{"lyft"}},
		{Name: "DoorDash", Keywords: []string{"doordash", "door dash", "dd driver"}},
		{Name: "Instacart", Keywords: []string{"instacart", "maplebear"}},
		{Name: "Grubhub", Keywords: []string{"grubhub", "grub hub"}},
		{Name: "Postmates", Keywords: []string{"postmates"}},
		{Name: "Amazon Flex", Keywords: []string{"amazon flex", "amzn flex"}},
		{Name: "Shipt", Keywords: []string{"shipt"}},
		{Name: "Spark Driver", Keywords: []string{"spark driver", "walmart spark", "ddi spark"}},
		{Name: "Gopuff", Keywords: []string{"gopuff", "go puff"}},
		{Name: "TaskRabbit", Keywords: []string{"taskrabbit", "task rabbit"}},
		{Name: "Rover", Keywords: []string{"rover.com", "rover pets"}},
		{Name: "Fiverr", Keywords: []string{"fiverr"}},
		{Name: "Upwork", Keywords: []string{"upwork"}},
		{Name: "Etsy", Keywords: []string{"etsy"}},
	}
}

// DefaultTable returns the default platform table.
func DefaultTable() Table {
	return MustNewTable(DefaultPlatforms())
}
