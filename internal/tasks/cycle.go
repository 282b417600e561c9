package tasks

import "dayplan/internal/schedule"

// WouldCreateCycle reports whether pointing taskID at dependsOn closes a loop
// in tasks. An empty dependsOn never does; a self-reference always does.
func WouldCreateCycle(tasks []schedule.Task, taskID, dependsOn string) bool {
	if dependsOn == "" {
		return false
	}
	if dependsOn == taskID {
		return true
	}

	parent := make(map[string]string, len(tasks))
	for _, t := range tasks {
		if _, seen := parent[t.ID]; !seen {
			parent[t.ID] = t.DependsOn
		}
	}

	visited := make(map[string]bool, len(tasks))
	stack := []string{dependsOn}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == taskID {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		if next := parent[cur]; next != "" {
			stack = append(stack, next)
		}
	}
	return false
}
