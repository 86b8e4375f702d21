package main

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"github.com/zzenonn/zplace/internal/repository/db"
)

var fromTable bool

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "List and manage object classes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if fromTable {
			repo, err := classRepository(cmd)
			if err != nil {
				return err
			}
			n, err := repo.LoadInto(cmd.Context(), classes)
			if err != nil {
				return err
			}
			logger.Infof("loaded %d classes from %s", n, cfg.DynamoDBTable)
		}
		for _, a := range classes.List() {
			fmt.Println(a)
		}
		return nil
	},
}

var classesPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Store the classes of the config file in the class table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := classRepository(cmd)
		if err != nil {
			return err
		}
		for _, a := range cfg.Classes {
			if err := repo.PutClass(cmd.Context(), a); err != nil {
				return err
			}
			fmt.Printf("Stored %s\n", a)
		}
		return nil
	},
}

var classesDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Remove a class from the class table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := classRepository(cmd)
		if err != nil {
			return err
		}
		if err := repo.DeleteClass(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func classRepository(cmd *cobra.Command) (*db.ClassRepository, error) {
	awsConfig, err := cfg.AWSConfig(cmd.Context())
	if err != nil {
		return nil, err
	}
	repo := db.NewClassRepository(dynamodb.NewFromConfig(awsConfig), cfg.DynamoDBTable)
	return &repo, nil
}

func init() {
	classesCmd.Flags().BoolVar(&fromTable, "from-table", false, "also load the classes stored in the class table")
	classesCmd.AddCommand(classesPushCmd)
	classesCmd.AddCommand(classesDeleteCmd)
	rootCmd.AddCommand(classesCmd)
}
