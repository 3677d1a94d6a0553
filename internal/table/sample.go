package table

// Sample returns the regional cuisine table: four countries, three regions
// each, with regional variation in staple food.
func Sample() *Table {
	t, err := New(
		[]string{"Country", "Region", "Staple Food", "Preferred Cuisine", "Climate"},
		[][]string{
			{"Japan", "North Japan", "Rice", "Sushi", "Temperate"},
			{"Japan", "South Japan", "Rice", "Ramen", "Subtropical"},
			{"Japan", "Central Japan", "Rice", "Tempura", "Temperate"},
			{"Mexico", "North Mexico", "Corn", "Tacos", "Tropical"},
			{"Mexico", "South Mexico", "Corn", "Enchiladas", "Tropical"},
			{"Mexico", "Central Mexico", "Corn", "Tamales", "Arid"},
			{"India", "North India", "Wheat", "Curry", "Tropical"},
			{"India", "South India", "Wheat", "Dosa", "Subtropical"},
			{"India", "Central India", "Rice", "Biryani", "Tropical"},
			{"USA", "North USA", "Wheat", "Burgers", "Temperate"},
			{"USA", "South USA", "Corn", "BBQ", "Arid"},
			{"USA", "Central USA", "Wheat", "Pizza", "Temperate"},
		},
	)
	if err != nil {
		panic(err)
	}
	return t
}
