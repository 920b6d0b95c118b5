// Command httpmocker runs the interceptor as a forward proxy in front of an
// upstream HTTP service.
package main

func main() {
	Execute()
}
