/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package main

import (
	"github.com/spf13/cobra"

	"github.com/cowdogmoo/dockyard/cli"
)

var imagesCmd = &cobra.Command{
	Use:   "images [IMAGE...]",
	Short: "List the images of the image configuration file",
	Long: `List the images declared in the image configuration file, in
declaration order. Unknown names suggest close matches.`,
	RunE: runImages,
}

var imagesFormat string

func init() {
	imagesCmd.Flags().StringVarP(&imagesFormat, "format", "o", "table", "Output format (table, json)")
}

func runImages(cmd *cobra.Command, args []string) error {
	_, images, err := loadImages(imageFile, args)
	if err != nil {
		return err
	}
	return cli.NewOutputFormatter(imagesFormat).DisplayImages(images)
}
