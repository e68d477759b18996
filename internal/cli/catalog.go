package cli

import "mcq-exam-service/internal/domain"

// sampleCatalog provides a small active exam over the five ranked categories; the
// Postgres-backed store is filled from it by the seed command.
func sampleCatalog() domain.Catalog {
	subjects := []struct {
		name, slug string
		prompts    [][2]string
	}{
		{"Mathematics", "math", [][2]string{
			{"What is 7 x 8?", "56"},
			{"What is the square root of 144?", "12"},
			{"What is 15% of 200?", "30"},
			{"What is 2 to the power 10?", "1024"},
		}},
		{"English", "english", [][2]string{
			{"Choose the synonym of 'rapid'.", "fast"},
			{"Choose the antonym of 'ancient'.", "modern"},
			{"Plural of 'mouse'?", "mice"},
			{"Past tense of 'go'?", "went"},
		}},
		{"Bangla", "bangla", [][2]string{
			{"Who wrote 'Gitanjali'?", "Rabindranath Tagore"},
			{"Who is known as the rebel poet?", "Kazi Nazrul Islam"},
			{"How many vowels are in the Bangla alphabet?", "11"},
			{"Which year was the Language Movement?", "1952"},
		}},
		{"ICT", "ict", [][2]string{
			{"What does CPU stand for?", "Central Processing Unit"},
			{"Which number system uses base 2?", "Binary"},
			{"What does HTML stand for?", "HyperText Markup Language"},
			{"1 byte equals how many bits?", "8"},
		}},
		{"General Knowledge", "general-knowledge", [][2]string{
			{"What is the capital of Bangladesh?", "Dhaka"},
			{"Which is the largest ocean?", "Pacific"},
			{"How many continents are there?", "7"},
			{"Which planet is known as the red planet?", "Mars"},
		}},
	}
	distractors := []string{"None of these", "All of these", "Cannot be determined"}

	catalog := domain.Catalog{
		Exams: []domain.Exam{{ID: 1, Title: "Sample Admission Test", TotalQuestions: 10, IsActive: true}},
	}
	var questionID, optionID int64
	for i, s := range subjects {
		categoryID := int64(i + 1)
		catalog.Categories = append(catalog.Categories, domain.Category{ID: categoryID, Name: s.name, Slug: s.slug, IsActive: true})
		catalog.Rules = append(catalog.Rules, domain.ExamCategoryRule{ExamID: 1, CategoryID: categoryID, QuestionCount: 2})
		for _, p := range s.prompts {
			questionID++
			q := domain.Question{ID: questionID, CategoryID: categoryID, Text: p[0], IsActive: true}
			optionID++
			q.Options = append(q.Options, domain.Option{ID: optionID, QuestionID: questionID, Text: p[1], IsCorrect: true})
			for _, d := range distractors {
				optionID++
				q.Options = append(q.Options, domain.Option{ID: optionID, QuestionID: questionID, Text: d})
			}
			catalog.Questions = append(catalog.Questions, q)
		}
	}
	return catalog
}
