// Command gitdb is a small inspection tool over the object database:
// loose objects, trees, the index, and pack files.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meigma/gitdb"
	"github.com/meigma/gitdb/object"
)

var (
	gitDir   string
	workTree string

	repo *gitdb.Repository
)

var rootCmd = &cobra.Command{
	Use:           "gitdb",
	Short:         "Inspect a git object database",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir := gitDir
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			dir = filepath.Join(wd, ".git")
		}
		opts := []gitdb.Option{}
		if workTree != "" {
			opts = append(opts, gitdb.WithWorkDir(workTree))
		}
		var err error
		repo, err = gitdb.Open(dir, opts...)
		return err
	},
}

var catFileCmd = &cobra.Command{
	Use:   "cat-file <id>",
	Short: "Print a loose object's type and size, and its content unless it is a tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := object.ParseID(args[0])
		if err != nil {
			return err
		}
		ldr, err := repo.OpenObject(id)
		if err != nil {
			return err
		}
		if ldr == nil {
			return fmt.Errorf("object %s not found", id)
		}
		fmt.Printf("%s %d\n", ldr.Type(), ldr.Size())
		if ldr.Type() != object.TypeTree {
			os.Stdout.Write(ldr.Bytes())
		}
		return nil
	},
}

var lsTreeCmd = &cobra.Command{
	Use:   "ls-tree <id>",
	Short: "List a tree object's members in git order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := object.ParseID(args[0])
		if err != nil {
			return err
		}
		t := repo.MapTree(id)
		members, err := t.Members()
		if err != nil {
			return err
		}
		for _, e := range members {
			typ := object.TypeBlob
			if e.Mode() == object.ModeTree {
				typ = object.TypeTree
			}
			fmt.Printf("%s %s %s\t%s\n", e.Mode(), typ, e.ID(), e.Name())
		}
		return nil
	},
}

var lsIndexCmd = &cobra.Command{
	Use:   "ls-index",
	Short: "List the staged entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := repo.Index()
		if err != nil {
			return err
		}
		for _, e := range idx.Members() {
			fmt.Printf("%6o %s %d\t%s\n", e.ModeBits(), e.ObjectID(), e.Stage(), e.Name())
		}
		return nil
	},
}

var writeTreeCmd = &cobra.Command{
	Use:   "write-tree",
	Short: "Materialize the index as tree objects and print the root id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := repo.Index()
		if err != nil {
			return err
		}
		id, err := idx.WriteTree()
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var verifyPackCmd = &cobra.Command{
	Use:   "verify-pack <pack>",
	Short: "Walk every record in a pack file and print a summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repo.OpenPack(args[0])
		if err != nil {
			return err
		}
		defer r.Close()
		var n int
		for obj, err := range r.Objects() {
			if err != nil {
				return err
			}
			typ := obj.Type()
			if obj.IsDelta() {
				typ = "ref-delta " + obj.DeltaBase().String()
			}
			fmt.Printf("%8d %-9s %d\n", obj.Offset(), typ, obj.Size())
			n++
		}
		fmt.Printf("pack v%d: %d objects\n", r.Version(), n)
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&gitDir, "git-dir", "", "repository metadata directory (default ./.git)")
	rootCmd.PersistentFlags().StringVar(&workTree, "work-tree", "", "working directory (default parent of --git-dir)")
	rootCmd.AddCommand(catFileCmd, lsTreeCmd, lsIndexCmd, writeTreeCmd, verifyPackCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gitdb:", err)
		os.Exit(1)
	}
}
