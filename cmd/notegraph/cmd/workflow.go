package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	ngerrors "github.com/notegraph/notegraph/internal/errors"
	"github.com/notegraph/notegraph/internal/workflow"
)

// workflowFile is the YAML shape accepted by `workflow run` and
// `workflow create`.
type workflowFile struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Steps       []workflowFileStep `yaml:"steps"`
}

type workflowFileStep struct {
	Name       string         `yaml:"name"`
	Action     string         `yaml:"action"`
	Params     map[string]any `yaml:"parameters"`
	Deps       []string       `yaml:"dependencies"`
	Timeout    float64        `yaml:"timeout"`
	RetryCount int            `yaml:"retry_count"`
	RetryDelay float64        `yaml:"retry_delay"`
}

func newWorkflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Define and run multi-step workflows",
	}
	cmd.AddCommand(newWorkflowRunCmd())
	cmd.AddCommand(newWorkflowListCmd())
	cmd.AddCommand(newWorkflowStatusCmd())
	return cmd
}

// loadWorkflowFile parses a workflow definition from YAML.
func loadWorkflowFile(path string) (*workflowFile, []workflow.StepSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, ngerrors.Wrap(ngerrors.KindNotFound, "read workflow file", err)
	}

	var wf workflowFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, nil, ngerrors.Wrap(ngerrors.KindInvalidInput, "parse workflow YAML", err)
	}
	if wf.Name == "" {
		wf.Name = path
	}

	specs := make([]workflow.StepSpec, 0, len(wf.Steps))
	for _, s := range wf.Steps {
		specs = append(specs, workflow.StepSpec{
			Name:        s.Name,
			Action:      s.Action,
			Params:      s.Params,
			Deps:        s.Deps,
			TimeoutSecs: s.Timeout,
			RetryCount:  s.RetryCount,
			RetryDelay:  s.RetryDelay,
		})
	}
	return &wf, specs, nil
}

func newWorkflowRunCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Create a workflow from a YAML file and run it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			wf, specs, err := loadWorkflowFile(args[0])
			if err != nil {
				return err
			}

			id, err := a.workflows.Create(ctx, wf.Name, wf.Description, specs, "cli")
			if err != nil {
				return err
			}
			if err := a.workflows.Start(ctx, id); err != nil {
				return err
			}
			if err := a.workflows.Wait(ctx, id); err != nil {
				return err
			}

			status, err := a.workflows.GetStatus(ctx, id)
			if err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(status)
			}
			printer().WorkflowStatus(status)
			if status.Status != workflow.StatusCompleted {
				return ngerrors.New(ngerrors.KindDependency,
					"workflow finished as "+status.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of formatted output")
	return cmd
}

func newWorkflowListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			workflows, err := a.store.ListWorkflows(ctx, status)
			if err != nil {
				return err
			}
			for _, wf := range workflows {
				fmt.Printf("%s  %-10s %s\n", wf.ID, wf.Status, wf.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	return cmd
}

func newWorkflowStatusCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show one workflow's progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			engine := workflow.NewEngine(a.store, nil)
			defer engine.Shutdown()

			status, err := engine.GetStatus(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(status)
			}
			printer().WorkflowStatus(status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of formatted output")
	return cmd
}
