package main

import (
	"fmt"
	"io"
	"io/ioutil"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/touchstone-hle/guestcore/pkg/guestfs"
	"github.com/touchstone-hle/guestcore/pkg/guestmem"
	"github.com/touchstone-hle/guestcore/pkg/guestpath"
	"github.com/touchstone-hle/guestcore/pkg/macho"
)

var loadConfiguration struct {
	help bool
}

var loadCommand = &cobra.Command{
	Use:                   "load <bundle-path> <executable>",
	Short:                 "Load the named Mach-O executable out of a bundle and report what the loader found",
	Args:                  cobra.ExactArgs(2),
	DisableFlagsInUseLine: true,
	Run:                   mainify(loadMain),
}

func init() {
	registerHelpFlag(loadCommand.Flags(), &loadConfiguration.help)
}

func loadMain(command *cobra.Command, arguments []string) error {
	handle := newBundleHandle(arguments[0])
	executablePath := guestpath.GuestPath(arguments[1])

	bundle, err := guestfs.OpenAny(handle.Path)
	if err != nil {
		return err
	}
	defer bundle.Close()

	root, err := bundle.IntoFsNode()
	if err != nil {
		return err
	}
	fs := guestfs.NewFileSystem(root)

	f, err := fs.OpenWithOptions(executablePath, guestfs.NewGuestOpenOptions().Read())
	if err != nil {
		return fmt.Errorf("could not open %q in %s: %w", executablePath, handle, err)
	}
	defer f.Close()

	data, err := ioutil.ReadAll(io.LimitReader(f, 1<<31))
	if err != nil {
		return fmt.Errorf("could not read %q: %w", executablePath, err)
	}

	mem := guestmem.NewFlatMemory()
	image, err := macho.LoadFromBytes(data, mem)
	if err != nil {
		return fmt.Errorf("could not load %q: %w", executablePath, err)
	}

	fmt.Printf("loaded %s (%s)\n", executablePath, humanize.Bytes(uint64(len(data))))
	if image.HasEntryPoint {
		fmt.Printf("entry point: %#x\n", image.EntryPointAddr)
	} else {
		fmt.Println("entry point: not found")
	}

	fmt.Printf("%d dynamic libraries:\n", len(image.DynamicLibraries))
	for _, lib := range image.DynamicLibraries {
		fmt.Printf("  %s\n", lib)
	}

	fmt.Printf("%d sections:\n", len(image.Sections))
	for _, section := range image.Sections {
		fmt.Printf("  %-20s addr=%#-10x size=%s\n", section.Name, section.Addr, humanize.Bytes(uint64(section.Size)))
		if section.DyldIndirectSymbolInfo != nil {
			for _, name := range section.DyldIndirectSymbolInfo.IndirectUndefSymbols {
				if name != "" {
					fmt.Printf("    -> %s\n", name)
				}
			}
		}
	}

	if len(image.ExternalRelocations) > 0 {
		fmt.Printf("%d external relocations:\n", len(image.ExternalRelocations))
		for _, reloc := range image.ExternalRelocations {
			fmt.Printf("  %#x -> %s\n", reloc.Addr, reloc.Name)
		}
	}

	return nil
}
