package taskpool_test

import (
	"context"
	"fmt"

	"github.com/ygrebnov/taskpool"
)

func ExampleRunEach() {
	double := func(_ context.Context, n int) (int, error) { return n * 2, nil }

	report, err := taskpool.RunEach(context.Background(), double, []int{1, 2, 3},
		taskpool.WithWorkers(2),
	)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(report.Outputs())
	fmt.Println(report.Summary.Succeeded, "succeeded")
	// Output:
	// [2 4 6]
	// 3 succeeded
}

func ExampleScheduler_SubmitBatch() {
	greet := func(_ context.Context, name string) (string, error) {
		return "hello, " + name, nil
	}

	s, err := taskpool.New[string](taskpool.WithWorkers(2))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	s.Start(context.Background())
	defer s.Close()

	report, err := s.SubmitBatch(context.Background(),
		taskpool.Batch(greet, []string{"ada", "grace"}))
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	for _, out := range report.Outputs() {
		fmt.Println(out)
	}
	// Output:
	// hello, ada
	// hello, grace
}
