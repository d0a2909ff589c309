package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/provmark/provmark/internal/imageio"
	"github.com/provmark/provmark/pkg/watermark"
)

// watermarkCmd groups the watermark subcommands
var watermarkCmd = &cobra.Command{
	Use:   "watermark",
	Short: "Embed and detect invisible watermarks",
	Long: `Embed a traceability payload into image pixels, or look for one.

The watermark is written to the least significant bit of the blue channel at
publicly known positions. It is a traceability hint that survives losing the
signature file, not a proof of authenticity: use "provmark verify" for that.`,
}

var watermarkEmbedCmd = &cobra.Command{
	Use:   "embed [flags] INPUT OUTPUT",
	Short: "Embed a watermark into an image",
	Example: `  provmark watermark embed render.png marked.png --user-id alice
  provmark watermark embed render.png marked.jpg --source face.jpg --target clip.mp4`,
	Args: cobra.ExactArgs(2),
	RunE: runWatermarkEmbedCommand,
}

var watermarkVerifyCmd = &cobra.Command{
	Use:   "verify [flags] IMAGE...",
	Short: "Detect watermarks in images",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatermarkVerifyCommand,
}

var watermarkExtractCmd = &cobra.Command{
	Use:   "extract [flags] IMAGE",
	Short: "Print the raw text read from the watermark positions",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatermarkExtractCommand,
}

func init() {
	watermarkEmbedCmd.Flags().String("source", "", "source input whose hash is recorded")
	watermarkEmbedCmd.Flags().String("target", "", "target input whose hash is recorded")
	watermarkEmbedCmd.Flags().String("user-id", "", "user identifier recorded in the payload")
	watermarkEmbedCmd.Flags().StringArrayP("meta", "m", nil, "extra payload field key=value (repeatable, overrides built-in fields)")
	watermarkEmbedCmd.Flags().Int("quality", imageio.DefaultJPEGQuality, "JPEG output quality")
	watermarkEmbedCmd.Flags().Bool("no-metadata", false, "do not also store the payload as file metadata")

	watermarkVerifyCmd.Flags().Bool("strict", false, "require the payload to parse as JSON")
	watermarkVerifyCmd.Flags().StringP("output", "o", "text", "report format: text or json")

	watermarkExtractCmd.Flags().Int("bits", watermark.DefaultDetectBits, "number of bits to read")

	watermarkCmd.AddCommand(watermarkEmbedCmd)
	watermarkCmd.AddCommand(watermarkVerifyCmd)
	watermarkCmd.AddCommand(watermarkExtractCmd)
}

func newCodec() *watermark.Codec {
	return watermark.NewCodec(appConfig.WatermarkConfig(), watermark.WithLogger(logger))
}

func runWatermarkEmbedCommand(cmd *cobra.Command, args []string) error {
	input, output := args[0], args[1]

	if _, err := imageio.FormatFromPath(output); err != nil {
		return err
	}

	img, _, err := imageio.Read(input)
	if err != nil {
		return err
	}

	pairs, _ := cmd.Flags().GetStringArray("meta")
	extra, err := parseMetadata(pairs)
	if err != nil {
		return err
	}

	source, _ := cmd.Flags().GetString("source")
	target, _ := cmd.Flags().GetString("target")
	userID, _ := cmd.Flags().GetString("user-id")
	quality, _ := cmd.Flags().GetInt("quality")
	noMetadata, _ := cmd.Flags().GetBool("no-metadata")

	stamped, err := newCodec().Stamp(img, watermark.PayloadOptions{
		SourcePath: source,
		TargetPath: target,
		OutputPath: output,
		UserID:     userID,
		Extra:      extra,
	})
	if err != nil {
		return err
	}

	opts := imageio.WriteOptions{Quality: quality, Logger: logger}
	if !noMetadata {
		opts.Text = stamped.Payload
	}
	if err := imageio.Write(output, stamped.Image, opts); err != nil {
		return err
	}

	b := img.Bounds()
	if stamped.Result.Skipped {
		pterm.Warning.Printfln("%s is too small (%dx%d=%d pixels) for watermarking, minimum is %d pixels; written without watermark",
			input, b.Dx(), b.Dy(), stamped.Result.Pixels, appConfig.Watermark.MinPixels)
		return nil
	}

	pterm.Success.Printfln("%s watermarked (%d bits)", output, stamped.Result.Bits)
	if stamped.Result.Truncated {
		pterm.Warning.Println("Payload was truncated to fit the image capacity")
	}
	if quality < 100 && isJPEG(output) {
		pterm.Warning.Println("JPEG compression may destroy the pixel watermark; prefer PNG output")
	}
	return nil
}

func runWatermarkVerifyCommand(cmd *cobra.Command, args []string) error {
	strict, _ := cmd.Flags().GetBool("strict")
	output, _ := cmd.Flags().GetString("output")
	if output != "text" && output != "json" {
		return errors.Errorf("unsupported output format %q", output)
	}

	codec := newCodec()
	type entry struct {
		Image string `json:"image"`
		watermark.Detection
	}

	var entries []entry
	allFound := true
	for _, path := range args {
		img, _, err := imageio.Read(path)
		if err != nil {
			return err
		}

		det := codec.Detect(img)
		if strict && !det.Parsed {
			det.Found = false
		}
		allFound = allFound && det.Found
		entries = append(entries, entry{Image: path, Detection: det})
	}

	if output == "json" {
		if err := writeJSON(cmd.OutOrStdout(), entries); err != nil {
			return err
		}
	} else {
		for _, e := range entries {
			if !e.Found {
				pterm.Error.Printfln("%s: no watermark detected", e.Image)
				continue
			}
			md, err := json.MarshalIndent(e.Metadata, "", "  ")
			if err != nil {
				return err
			}
			pterm.Success.Printfln("%s: watermark detected", e.Image)
			fmt.Fprintln(cmd.OutOrStdout(), string(md))
		}
	}

	if !allFound {
		return errNotVerified
	}
	return nil
}

func runWatermarkExtractCommand(cmd *cobra.Command, args []string) error {
	bits, _ := cmd.Flags().GetInt("bits")

	img, _, err := imageio.Read(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), newCodec().Extract(img, bits))
	return nil
}

func isJPEG(path string) bool {
	format, err := imageio.FormatFromPath(path)
	return err == nil && format == watermark.FormatJPEG
}
